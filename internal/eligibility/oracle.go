package eligibility

import (
	"context"
	"math/big"
	"strings"

	"github.com/puzpuzpuz/xsync/v3"
	"go.uber.org/zap"

	"github.com/colonylab/nestfeed/internal/graph"
	apperrors "github.com/colonylab/nestfeed/pkg/errors"
	"github.com/colonylab/nestfeed/pkg/logger"
)

// GraphReader is the subset of the graph client the oracle consumes.
type GraphReader interface {
	AccountInvolvements(ctx context.Context, account string) ([]string, error)
	FirstStakeTimestamp(ctx context.Context, account string) (int64, bool, error)
	ProjectDisplayData(ctx context.Context, projects []string) ([]graph.ProjectDisplay, error)
}

// Oracle answers involvement and financial-state questions about
// (project, account) pairs. Every remote read is memoized for the process
// lifetime; the caches are owned by the Oracle instance, not package state.
type Oracle struct {
	chain ChainReader
	graph GraphReader
	log   *zap.Logger

	projectExists   *xsync.MapOf[string, bool]
	involvement     *xsync.MapOf[string, bool] // keyed project|account
	allocations     *xsync.MapOf[string, *big.Int]
	overinvestments *xsync.MapOf[string, *big.Int]

	names *xsync.MapOf[string, string]
	logos *xsync.MapOf[string, string]

	// involvementsReady marks accounts whose bulk involvement fetch has run;
	// IsInvolved is undefined before that.
	involvementsReady  *xsync.MapOf[string, bool]
	firstActivity      *xsync.MapOf[string, int64]
	firstActivityReady *xsync.MapOf[string, bool]
}

// NewOracle constructs an oracle over the given ledger and graph boundaries.
func NewOracle(chain ChainReader, graphReader GraphReader) *Oracle {
	return &Oracle{
		chain: chain,
		graph: graphReader,
		log:   logger.WithModule("eligibility"),

		projectExists:   xsync.NewMapOf[string, bool](),
		involvement:     xsync.NewMapOf[string, bool](),
		allocations:     xsync.NewMapOf[string, *big.Int](),
		overinvestments: xsync.NewMapOf[string, *big.Int](),

		names: xsync.NewMapOf[string, string](),
		logos: xsync.NewMapOf[string, string](),

		involvementsReady:  xsync.NewMapOf[string, bool](),
		firstActivity:      xsync.NewMapOf[string, int64](),
		firstActivityReady: xsync.NewMapOf[string, bool](),
	}
}

// ProjectExists reports whether the project is known on chain, memoized per
// project.
func (o *Oracle) ProjectExists(ctx context.Context, project string) (bool, error) {
	project = strings.ToLower(project)

	if exists, ok := o.projectExists.Load(project); ok {
		return exists, nil
	}

	exists, err := o.chain.ProjectExists(ctx, project)
	if err != nil {
		return false, err
	}

	o.projectExists.Store(project, exists)
	return exists, nil
}

// Allocation returns the account's allocation balance in the project,
// memoized per pair. Unknown projects report a zero balance.
func (o *Oracle) Allocation(ctx context.Context, project, account string) (*big.Int, error) {
	key := pairKey(project, account)

	if amount, ok := o.allocations.Load(key); ok {
		return amount, nil
	}

	exists, err := o.ProjectExists(ctx, project)
	if err != nil {
		return nil, err
	}
	if !exists {
		o.log.Warn("allocation queried for unknown project", zap.String("project", strings.ToLower(project)))
		zero := big.NewInt(0)
		o.allocations.Store(key, zero)
		return zero, nil
	}

	amount, err := o.chain.AllocationBalance(ctx, project, account)
	if err != nil {
		return nil, err
	}

	o.allocations.Store(key, amount)
	return amount, nil
}

// Overinvestment returns the account's reclaimable excess in the project,
// memoized per pair. Unknown projects report zero.
func (o *Oracle) Overinvestment(ctx context.Context, project, account string) (*big.Int, error) {
	key := pairKey(project, account)

	if amount, ok := o.overinvestments.Load(key); ok {
		return amount, nil
	}

	exists, err := o.ProjectExists(ctx, project)
	if err != nil {
		return nil, err
	}
	if !exists {
		o.log.Warn("overinvestment queried for unknown project", zap.String("project", strings.ToLower(project)))
		zero := big.NewInt(0)
		o.overinvestments.Store(key, zero)
		return zero, nil
	}

	amount, err := o.chain.Overinvestment(ctx, project, account)
	if err != nil {
		return nil, err
	}

	o.overinvestments.Store(key, amount)
	return amount, nil
}

// FetchAccountInvolvements bulk-populates the involvement cache for every
// project the account touches, in one round trip. It must run at least once
// per session before IsInvolved reads for that account.
func (o *Oracle) FetchAccountInvolvements(ctx context.Context, account string) error {
	account = strings.ToLower(account)

	projects, err := o.graph.AccountInvolvements(ctx, account)
	if err != nil {
		return err
	}

	for _, project := range projects {
		o.involvement.Store(pairKey(project, account), true)
	}
	o.involvementsReady.Store(account, true)

	return nil
}

// IsInvolved reports whether the account holds a positive historical maximum
// allocation in the project. It is a synchronous cache read and returns an
// error when FetchAccountInvolvements has not run for the account; that is a
// caller sequencing bug, not a transient failure.
func (o *Oracle) IsInvolved(project, account string) (bool, error) {
	account = strings.ToLower(account)

	if _, ok := o.involvementsReady.Load(account); !ok {
		return false, apperrors.ErrInvolvementsNotFetched
	}

	involved, _ := o.involvement.Load(pairKey(project, account))
	return involved, nil
}

// FetchProjectDisplayData bulk-populates name and logo for projects that are
// not resolved yet. Already-cached projects cost nothing.
func (o *Oracle) FetchProjectDisplayData(ctx context.Context, projects []string) error {
	missing := make([]string, 0, len(projects))
	for _, project := range projects {
		project = strings.ToLower(project)
		if project == "" {
			continue
		}
		if _, ok := o.names.Load(project); ok {
			continue
		}
		missing = append(missing, project)
	}
	if len(missing) == 0 {
		return nil
	}

	displays, err := o.graph.ProjectDisplayData(ctx, missing)
	if err != nil {
		return err
	}

	for _, display := range displays {
		o.names.Store(display.Address, display.Name)
		o.logos.Store(display.Address, display.Logo)
	}

	return nil
}

// ProjectName returns the cached display name for the project.
func (o *Oracle) ProjectName(project string) (string, bool) {
	return o.names.Load(strings.ToLower(project))
}

// ProjectLogo returns the cached logo for the project.
func (o *Oracle) ProjectLogo(project string) (string, bool) {
	return o.logos.Load(strings.ToLower(project))
}

// FetchFirstActivity resolves and caches the account's first qualifying
// activity timestamp. The boolean is false when the account has no history.
func (o *Oracle) FetchFirstActivity(ctx context.Context, account string) (int64, bool, error) {
	account = strings.ToLower(account)

	if _, ok := o.firstActivityReady.Load(account); ok {
		ts, found := o.firstActivity.Load(account)
		return ts, found, nil
	}

	ts, found, err := o.graph.FirstStakeTimestamp(ctx, account)
	if err != nil {
		return 0, false, err
	}

	if found {
		o.firstActivity.Store(account, ts)
	}
	o.firstActivityReady.Store(account, true)

	return ts, found, nil
}
