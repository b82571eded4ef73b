package obligation

import (
	"context"
	"time"

	"github.com/aliyura/braverock-ledger/ledger"
)

// FundRequest adapts fund requests produced by the fund-request approval
// workflow.
type FundRequest struct{}

func (FundRequest) Kind() ledger.Kind { return ledger.KindFundRequest }

func (FundRequest) Load(ctx context.Context, s ledger.Store, id int64) (*ledger.ObligationView, error) {
	return load(ctx, s, ledger.KindFundRequest, id)
}

func (FundRequest) ApplyPayment(ctx context.Context, s ledger.Store, id int64, amount ledger.Amount, actor string, at time.Time) (*ledger.ObligationView, error) {
	return applyPayment(ctx, s, ledger.KindFundRequest, id, amount, actor, at)
}
