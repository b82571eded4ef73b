package obligation

import (
	"context"
	"time"

	"github.com/aliyura/braverock-ledger/ledger"
)

// Incident adapts incident payouts produced by the incident approval workflow.
type Incident struct{}

func (Incident) Kind() ledger.Kind { return ledger.KindIncident }

func (Incident) Load(ctx context.Context, s ledger.Store, id int64) (*ledger.ObligationView, error) {
	return load(ctx, s, ledger.KindIncident, id)
}

func (Incident) ApplyPayment(ctx context.Context, s ledger.Store, id int64, amount ledger.Amount, actor string, at time.Time) (*ledger.ObligationView, error) {
	return applyPayment(ctx, s, ledger.KindIncident, id, amount, actor, at)
}
