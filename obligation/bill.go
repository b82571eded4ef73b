package obligation

import (
	"context"
	"time"

	"github.com/aliyura/braverock-ledger/ledger"
)

// Bill adapts work bills produced by the work-bill approval workflow.
type Bill struct{}

func (Bill) Kind() ledger.Kind { return ledger.KindBill }

func (Bill) Load(ctx context.Context, s ledger.Store, id int64) (*ledger.ObligationView, error) {
	return load(ctx, s, ledger.KindBill, id)
}

func (Bill) ApplyPayment(ctx context.Context, s ledger.Store, id int64, amount ledger.Amount, actor string, at time.Time) (*ledger.ObligationView, error) {
	return applyPayment(ctx, s, ledger.KindBill, id, amount, actor, at)
}
