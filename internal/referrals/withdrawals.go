package referrals

import (
	"context"
	"fmt"
	"strings"

	"github.com/smolentsev/shopbot/internal/notify"
	"github.com/smolentsev/shopbot/pkg/db/models"
	pkgerrors "github.com/smolentsev/shopbot/pkg/errors"
	"github.com/smolentsev/shopbot/pkg/logger"
)

type accountFinder interface {
	Find(ctx context.Context, userID int64) (*models.UserAccount, error)
}

// WithdrawalService turns a partner's payout wish into a request the
// operator settles by hand. The balance is not deducted here: the operator
// debits it with a manual adjustment once the payout actually happened.
type WithdrawalService struct {
	accounts   accountFinder
	notifier   notify.Notifier
	logg       *logger.Logger
	operatorID int64
}

// WithdrawalParams configure the withdrawal service.
type WithdrawalParams struct {
	Accounts   accountFinder
	Notifier   notify.Notifier
	Logger     *logger.Logger
	OperatorID int64
}

// NewWithdrawalService builds the withdrawal request service.
func NewWithdrawalService(params WithdrawalParams) (*WithdrawalService, error) {
	if params.Accounts == nil {
		return nil, fmt.Errorf("account finder required")
	}
	if params.Notifier == nil {
		return nil, fmt.Errorf("notifier required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &WithdrawalService{
		accounts:   params.Accounts,
		notifier:   params.Notifier,
		logg:       params.Logger,
		operatorID: params.OperatorID,
	}, nil
}

// RequestWithdrawal validates the amount against the partner's current
// balance and forwards the request with its payout details to the
// operator. The notification is the request itself, so a delivery failure
// is an error, not a shrug.
func (s *WithdrawalService) RequestWithdrawal(ctx context.Context, partnerID int64, amount float64, details string) error {
	ctx = s.logg.WithUserID(ctx, partnerID)

	if amount <= 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "the withdrawal amount must be positive")
	}
	details = strings.TrimSpace(details)
	if details == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "payout details are required")
	}

	account, err := s.accounts.Find(ctx, partnerID)
	if err != nil {
		return err
	}
	if account == nil || !account.IsPartner {
		return pkgerrors.New(pkgerrors.CodeForbidden, "only partners can request withdrawals")
	}
	if amount > account.Balance {
		return pkgerrors.New(pkgerrors.CodeValidation,
			fmt.Sprintf("not enough funds: your balance is %.2f", account.Balance))
	}

	request := fmt.Sprintf("Withdrawal request\nPartner: %s (%d)\nAmount: %.2f\nDetails: %s",
		account.Username, partnerID, amount, details)
	if err := s.notifier.Send(ctx, s.operatorID, request); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "forwarding withdrawal request")
	}

	s.logg.Info(ctx, "withdrawal request forwarded")
	return nil
}
