package bot

import (
	"errors"
	"fmt"
	"strings"

	"github.com/candicepay/bot-service/internal/app"
	"github.com/candicepay/bot-service/internal/domain"
	"github.com/candicepay/bot-service/pkg/vision"
)

// Reply-keyboard labels. Each maps onto a command.
const (
	buttonMakePayment   = "💰 Make Payment"
	buttonCheckBalance  = "📊 Check Balance"
	buttonAffiliate     = "👥 Affiliate"
	buttonBanks         = "🏦 Supported Banks"
	buttonRegister      = "📝 Register Account"
	buttonCancel        = "❌ Cancel"
	buttonHistory       = "📋 Transaction History"
	buttonLearnMore     = "ℹ️ Learn More"
	callbackScan        = "payment_scan"
	callbackManual      = "payment_manual"
	callbackConfirm     = "confirm_payment"
	callbackCancel      = "cancel_payment"
	recentTransactions  = 5
	popularBanksShown   = 10
	rateLimitScope      = "bot"
	rateLimitWindowSecs = 60
)

var keyboardCommands = map[string]string{
	buttonMakePayment:  "pay",
	buttonCheckBalance: "balance",
	buttonHistory:      "balance",
	buttonAffiliate:    "affiliate",
	buttonBanks:        "banks",
	buttonRegister:     "register",
	buttonCancel:       "cancel",
	buttonLearnMore:    "start",
}

var (
	mainKeyboard = [][]string{
		{buttonMakePayment, buttonCheckBalance},
		{buttonHistory, buttonAffiliate},
		{buttonBanks},
	}
	guestKeyboard = [][]string{
		{buttonRegister},
		{buttonLearnMore},
	}
)

var markdownEscaper = strings.NewReplacer("_", "\\_", "*", "\\*", "`", "\\`", "[", "\\[")

// escape makes user-supplied text safe inside a Markdown message.
func escape(value string) string {
	return markdownEscaper.Replace(value)
}

const guestWelcome = "🎉 *Welcome to CandicePay!*\n\n" +
	"Your smart banking assistant with:\n" +
	"✅ Instant Nigerian bank transfers\n" +
	"✅ Virtual account generation\n" +
	"✅ Smart image payment processing\n" +
	"✅ 0.5% affiliate rewards\n" +
	"✅ Email transaction receipts\n\n" +
	"Tap 'Register Account' to get started!"

const manualEntryPrompt = "📝 *Enter payment details* in one message:\n\n" +
	"`account number, bank name, account name, amount`\n\n" +
	"Example: `0123456789, Access Bank, Ada Obi, 10000`\n" +
	"The amount is optional; you will be asked for it if it is missing."

const scanPrompt = "📸 Send a clear photo of the bank slip or check.\nMake sure account details are visible."

const extractionFailedText = "❌ Could not read bank details from the image.\n" +
	"Please ensure:\n" +
	"• Clear photo of bank slip or check\n" +
	"• Account number is visible\n" +
	"• Bank name is visible\n\n" +
	"Try again or use manual entry."

const genericFailureText = "❌ An error occurred. Please try again."

func welcomeBackText(user *domain.User) string {
	return fmt.Sprintf("👋 Welcome back, %s!\n\n*Account:* %s\n*Balance:* %s\n*Status:* %s\n\nUse the buttons below to get started!",
		escape(user.FirstName), user.AccountNumber, domain.FormatNaira(user.WalletBalance), user.Status)
}

func alreadyRegisteredText(user *domain.User) string {
	return fmt.Sprintf("✅ You're already registered!\n\n*Account Details:*\n🏦 Bank: %s\n📱 Account: %s\n💰 Balance: %s\n\nUse /pay to make transfers.",
		escape(user.BankName), user.AccountNumber, domain.FormatNaira(user.WalletBalance))
}

func registrationSuccessText(result *app.RegistrationResult) string {
	return fmt.Sprintf("🎉 *Registration Successful!*\n\n"+
		"*Your Virtual Account:*\n"+
		"🏦 Bank: %s\n"+
		"📱 Account Number: *%s*\n"+
		"👤 Account Name: %s\n\n"+
		"*How to use:*\n"+
		"1. Send money to the account above\n"+
		"2. Funds appear in your wallet instantly\n"+
		"3. Make payments to any Nigerian bank\n\n"+
		"*Affiliate Code:* %s\n"+
		"Share to earn 0.5%% on referrals!",
		escape(result.Account.BankName), result.Account.AccountNumber, escape(accountName(result)), result.User.AffiliateCode)
}

func accountName(result *app.RegistrationResult) string {
	if result.Account.AccountName != "" {
		return result.Account.AccountName
	}
	return result.User.FirstName
}

func referralNoticeText(firstName string) string {
	return fmt.Sprintf("🎊 New Referral!\n\n%s just joined using your code!\nYou'll earn 0.5%% on all their transactions.", firstName)
}

func insufficientBalanceText(user *domain.User) string {
	return fmt.Sprintf("❌ Insufficient balance\n\nYour wallet balance: %s\nPlease deposit to your virtual account:\n🏦 Bank: %s\n📱 Account: *%s*\n\nFunds appear instantly after deposit.",
		domain.FormatNaira(user.WalletBalance), escape(user.BankName), user.AccountNumber)
}

func paymentDetailsText(draft *domain.PaymentDraft) string {
	var b strings.Builder
	b.WriteString("✅ *Details Extracted:*\n\n")
	fmt.Fprintf(&b, "👤 Account Name: %s\n", escape(draft.AccountName))
	fmt.Fprintf(&b, "📱 Account Number: %s\n", draft.AccountNumber)
	fmt.Fprintf(&b, "🏦 Bank: %s\n", escape(draft.BankName))
	if draft.AmountKobo > 0 {
		fmt.Fprintf(&b, "💰 Amount: %s\n\nConfirm payment?", domain.FormatNaira(draft.AmountKobo))
	} else {
		b.WriteString("\nPlease enter the amount to send:")
	}
	return b.String()
}

func paymentInitiatedText(result *app.PaymentResult) string {
	return fmt.Sprintf("✅ *Payment Initiated!*\n\nAmount: %s\nTo: %s\nBank: %s\nReference: %s\n\nStatus will update shortly. Receipt sent to your email.",
		domain.FormatNaira(result.Transaction.Amount), escape(result.ResolvedName), escape(result.Bank.Name), escape(result.Transaction.Reference))
}

func balanceText(user *domain.User, recent []domain.Transaction) string {
	var b strings.Builder
	b.WriteString("💰 *Account Balance*\n\n")
	fmt.Fprintf(&b, "*Available:* %s\n", domain.FormatNaira(user.WalletBalance))
	fmt.Fprintf(&b, "*Account:* %s\n", user.AccountNumber)
	fmt.Fprintf(&b, "*Bank:* %s\n", escape(user.BankName))
	fmt.Fprintf(&b, "*Status:* %s\n", user.Status)
	if len(recent) > 0 {
		b.WriteString("\n*Recent Transactions:*\n")
		for _, txn := range recent {
			sign := "-"
			if txn.Type == domain.TransactionTypeDeposit {
				sign = "+"
			}
			fmt.Fprintf(&b, "• %s%s - %s\n", sign, domain.FormatNaira(txn.Amount), txn.Status)
		}
	}
	return b.String()
}

func affiliateText(user *domain.User, stats *domain.AffiliateStats, botUsername string) string {
	return fmt.Sprintf("👥 *Affiliate Program*\n\n"+
		"*Your Code:* `%s`\n"+
		"*Total Referrals:* %d\n"+
		"*Total Earnings:* %s\n"+
		"*Available Balance:* %s\n\n"+
		"*How it works:*\n"+
		"• Share your code with friends\n"+
		"• They register using your link\n"+
		"• You earn *0.5%%* of all their transactions\n\n"+
		"*Share Link:*\n`https://t.me/%s?start=%s`",
		user.AffiliateCode, stats.Referrals, domain.FormatNaira(stats.TotalEarnings), domain.FormatNaira(user.TotalEarnings),
		botUsername, user.AffiliateCode)
}

func banksText(popular []domain.Bank, total int) string {
	var b strings.Builder
	b.WriteString("*Popular Banks:*\n")
	for i, bank := range popular {
		if i == popularBanksShown {
			break
		}
		fmt.Fprintf(&b, "• %s\n", escape(bank.Name))
	}
	fmt.Fprintf(&b, "\n*Total Supported Banks:* %d\n", total)
	b.WriteString("All Nigerian banks are supported for transfers.")
	return b.String()
}

func adminText(stats *domain.Stats, dashboardURL string) string {
	return fmt.Sprintf("👑 *Admin Dashboard*\n\n*Users:* %d\n*Transactions:* %d\n*Total Volume:* %s\n*Today:* %s\n*Bot Status:* ✅ Online\n\nWeb Dashboard: %s",
		stats.Users, stats.Transactions, domain.FormatNaira(stats.TotalVolume), domain.FormatNaira(stats.TodayVolume), dashboardURL)
}

// userMessageForError is the one place errors become user-facing text.
func userMessageForError(err error) string {
	var paymentErr *app.PaymentError
	if errors.As(err, &paymentErr) {
		switch paymentErr.Kind {
		case app.KindBankNotFound:
			return "❌ Payment failed: Bank not found.\n\nCheck the bank name and try again with /pay. Use /banks to see supported banks."
		case app.KindAccountResolutionFailed:
			return "❌ Payment failed: Account verification failed.\n\nCheck the account number and bank, then try again with /pay."
		case app.KindRecipientCreationFailed:
			return "❌ Payment failed: Recipient creation failed.\n\nPlease try again or contact support."
		case app.KindTransferInitiationFailed:
			return "❌ Payment failed: Transfer initiation failed.\n\nNo money left your wallet. Please try again or contact support."
		case app.KindInsufficientFunds:
			return "❌ Insufficient balance for this payment. Fund your virtual account and try again."
		case app.KindInvalidAmount:
			return "❌ Please enter a valid amount greater than zero."
		case app.KindUserNotRegistered:
			return "Please register first using /register to start banking with us."
		case app.KindGatewayUnavailable:
			return "❌ The payment service is unavailable right now. Please try again shortly."
		case app.KindPersistenceFailed:
			return "⚠️ Your transfer was submitted but we could not record it. Our team has been alerted and will reconcile your wallet."
		}
		return genericFailureText
	}

	var regErr *app.RegistrationError
	if errors.As(err, &regErr) {
		switch regErr.Kind {
		case app.KindAlreadyRegistered:
			return "✅ You're already registered! Use /balance to see your account."
		case app.KindDuplicateDetails:
			return "❌ Registration failed: that email or phone is already linked to another account."
		case app.KindInvalidInput:
			return "❌ Registration failed: please check your details and try again with /register"
		}
		return "❌ Registration failed. Please try again with /register"
	}

	if errors.Is(err, vision.ErrExtractionFailed) {
		return extractionFailedText
	}
	return genericFailureText
}
