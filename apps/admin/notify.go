package main

import (
	"context"
	"time"

	"github.com/tesoreria/backend/core/ledger"
)

func (cli *commandLine) notify(today time.Time, dryRun bool) error {
	ctx := context.Background()
	if !dryRun {
		notices, err := cli.svc.NotifyDelinquent(ctx, nil, today)
		if err != nil {
			return err
		}
		for _, n := range notices {
			cli.printf("%s %s: %s\n", ledger.FormatRUT(n.RUT), n.Email, ledger.FormatCurrency(n.Amount))
		}
		cli.printf("%d avisos enviados\n", len(notices))
		return nil
	}

	students, err := cli.svc.Query(ctx, nil, nil)
	if err != nil {
		return err
	}
	var count int
	for _, s := range students {
		v, err := cli.svc.View(ctx, s.ID, today)
		if err != nil {
			return err
		}
		var overdue int64
		for _, inst := range v.Installments {
			if inst.State == ledger.StateOverdue || inst.State == ledger.StatePartialOverdue {
				overdue += inst.Outstanding
			}
		}
		if overdue == 0 {
			continue
		}
		count++
		email := s.GuardianEmail
		if email == "" {
			email = "(sin correo)"
		}
		cli.printf("%s %s %s: %s\n", ledger.FormatRUT(s.ID), s.Name, email, ledger.FormatCurrency(overdue))
	}
	cli.printf("%d alumnos con cuotas vencidas\n", count)
	return nil
}
