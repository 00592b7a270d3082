package usecase

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/Nzyazin/payagent/internal/core/automation"
	"github.com/Nzyazin/payagent/internal/core/logger"
	"github.com/Nzyazin/payagent/internal/core/models"
)

// login authenticates with the operator credentials and waits for the landing view.
func (uc *paymentUsecase) login(ctx context.Context, s *automation.Session) error {
	bank := uc.opts.Bank
	sel := bank.Selectors

	steps := []automation.Command{
		automation.Navigate(bank.URL),
		automation.Fill(sel.Username, bank.Username),
		automation.Fill(sel.Password, bank.Password),
		automation.Click(sel.LoginButton),
	}
	if err := run(ctx, s, steps...); err != nil {
		return fmt.Errorf("login: %w", err)
	}

	if err := sleepCtx(ctx, bank.LoginSettle); err != nil {
		return fmt.Errorf("login: %w", err)
	}

	if _, err := s.Execute(ctx, automation.Wait(sel.Dashboard, automation.StateVisible)); err != nil {
		return fmt.Errorf("login: %w", err)
	}
	return nil
}

// openTransferForm brings an already authenticated session back to the landing view.
func (uc *paymentUsecase) openTransferForm(ctx context.Context, s *automation.Session) error {
	bank := uc.opts.Bank
	return run(ctx, s,
		automation.Navigate(bank.URL),
		automation.Wait(bank.Selectors.Dashboard, automation.StateVisible),
	)
}

// submitTransfer fills and submits the transfer form, then waits for the PIN
// prompt. A prompt that never shows up is logged and tolerated.
func (uc *paymentUsecase) submitTransfer(ctx context.Context, s *automation.Session, tx models.Transaction) error {
	if !tx.HasAccount() {
		return fmt.Errorf("%w: transaction %d", ErrMissingAccount, tx.ID)
	}
	sel := uc.opts.Bank.Selectors

	err := run(ctx, s,
		automation.Fill(sel.Account, tx.Account()),
		automation.Fill(sel.Amount, tx.Amount.String()),
		automation.Click(sel.SubmitButton),
	)
	if err != nil {
		return fmt.Errorf("submit transfer: %w", err)
	}

	if _, err := s.Execute(ctx, automation.Wait(sel.PinModal, automation.StateVisible)); err != nil {
		uc.log.Warn("PIN prompt did not appear, continuing",
			logger.Int64Field("transaction_id", tx.ID),
			logger.ErrorField("error", err))
	}
	return nil
}

// confirmWithPin waits for the approver's PIN, enters it and checks the bank
// accepted the transfer.
func (uc *paymentUsecase) confirmWithPin(ctx context.Context, s *automation.Session, tx models.Transaction) error {
	sel := uc.opts.Bank.Selectors

	pin, err := uc.relay.Await(ctx, tx.ID, s.Refresh)
	if err != nil {
		return err
	}

	err = run(ctx, s,
		automation.Fill(sel.PinInput, pin),
		automation.Click(sel.ConfirmButton),
	)
	if err != nil {
		return fmt.Errorf("confirm transfer: %w", err)
	}

	if sel.SuccessModal != "" {
		if _, err := s.Execute(ctx, automation.Wait(sel.SuccessModal, automation.StateVisible)); err != nil {
			return uc.rejection(ctx, s, err)
		}
	}

	receipt := uc.receiptPath(tx)
	if _, err := s.Execute(ctx, automation.Screenshot(receipt)); err != nil {
		uc.log.Warn("Failed to save payment receipt",
			logger.Int64Field("transaction_id", tx.ID),
			logger.ErrorField("error", err))
	} else {
		uc.log.Info("Payment receipt saved",
			logger.Int64Field("transaction_id", tx.ID),
			logger.StringField("path", receipt))
	}
	return nil
}

// rejection builds the error for a transfer the bank did not confirm, adding
// the rejection message when the page shows one.
func (uc *paymentUsecase) rejection(ctx context.Context, s *automation.Session, cause error) error {
	sel := uc.opts.Bank.Selectors.ErrorMessage
	if sel == "" {
		return fmt.Errorf("%w: %w", ErrPaymentRejected, cause)
	}

	readCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	res, err := s.Execute(readCtx, automation.Read(sel))
	if err != nil || res.Text == "" {
		return fmt.Errorf("%w: %w", ErrPaymentRejected, cause)
	}
	return fmt.Errorf("%w: %s", ErrPaymentRejected, strings.TrimSpace(res.Text))
}

func (uc *paymentUsecase) receiptPath(tx models.Transaction) string {
	name := fmt.Sprintf("payment_%s_%d.png", fileSafe(tx.Vendor), tx.ID)
	return filepath.Join(uc.opts.ArtifactDir, name)
}

func run(ctx context.Context, s *automation.Session, cmds ...automation.Command) error {
	for _, cmd := range cmds {
		if _, err := s.Execute(ctx, cmd); err != nil {
			return err
		}
	}
	return nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func fileSafe(s string) string {
	if s == "" {
		return "unknown"
	}
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			return r
		}
		return '_'
	}, s)
}
