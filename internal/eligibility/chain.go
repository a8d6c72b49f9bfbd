package eligibility

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"os"
	"strings"
	"sync"
)

// ChainReader answers on-chain financial-state queries for (project, account)
// pairs. Implementations own their request timeouts; the oracle treats every
// call as an expensive remote read and memoizes the results.
type ChainReader interface {
	ProjectExists(ctx context.Context, project string) (bool, error)
	AllocationBalance(ctx context.Context, project, account string) (*big.Int, error)
	Overinvestment(ctx context.Context, project, account string) (*big.Int, error)
}

// StaticReader is a ChainReader backed by in-memory fixtures. It serves tests
// and deployments where the ledger gateway is not wired up yet.
type StaticReader struct {
	mu              sync.RWMutex
	projects        map[string]struct{}
	allocations     map[string]*big.Int
	overinvestments map[string]*big.Int
}

// NewStaticReader constructs an empty fixture reader.
func NewStaticReader() *StaticReader {
	return &StaticReader{
		projects:        make(map[string]struct{}),
		allocations:     make(map[string]*big.Int),
		overinvestments: make(map[string]*big.Int),
	}
}

type chainFixtures struct {
	Projects []struct {
		Address         string           `json:"address"`
		Allocations     map[string]int64 `json:"allocations,omitempty"`
		Overinvestments map[string]int64 `json:"overinvestments,omitempty"`
	} `json:"projects"`
}

// NewStaticReaderFromFile loads fixtures from a JSON file.
func NewStaticReaderFromFile(path string) (*StaticReader, error) {
	payload, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("eligibility: read fixtures: %w", err)
	}

	var fixtures chainFixtures
	if err := json.Unmarshal(payload, &fixtures); err != nil {
		return nil, fmt.Errorf("eligibility: parse fixtures: %w", err)
	}

	reader := NewStaticReader()
	for _, project := range fixtures.Projects {
		reader.AddProject(project.Address)
		for account, amount := range project.Allocations {
			reader.SetAllocation(project.Address, account, amount)
		}
		for account, amount := range project.Overinvestments {
			reader.SetOverinvestment(project.Address, account, amount)
		}
	}

	return reader, nil
}

func pairKey(project, account string) string {
	return strings.ToLower(project) + "|" + strings.ToLower(account)
}

// AddProject registers a project as existing on chain.
func (r *StaticReader) AddProject(project string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.projects[strings.ToLower(project)] = struct{}{}
}

// SetAllocation sets an account's allocation balance in a project.
func (r *StaticReader) SetAllocation(project, account string, amount int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.projects[strings.ToLower(project)] = struct{}{}
	r.allocations[pairKey(project, account)] = big.NewInt(amount)
}

// SetOverinvestment sets an account's reclaimable excess in a project.
func (r *StaticReader) SetOverinvestment(project, account string, amount int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.projects[strings.ToLower(project)] = struct{}{}
	r.overinvestments[pairKey(project, account)] = big.NewInt(amount)
}

// ProjectExists implements ChainReader.
func (r *StaticReader) ProjectExists(_ context.Context, project string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.projects[strings.ToLower(project)]
	return ok, nil
}

// AllocationBalance implements ChainReader.
func (r *StaticReader) AllocationBalance(_ context.Context, project, account string) (*big.Int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if amount, ok := r.allocations[pairKey(project, account)]; ok {
		return new(big.Int).Set(amount), nil
	}
	return big.NewInt(0), nil
}

// Overinvestment implements ChainReader.
func (r *StaticReader) Overinvestment(_ context.Context, project, account string) (*big.Int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if amount, ok := r.overinvestments[pairKey(project, account)]; ok {
		return new(big.Int).Set(amount), nil
	}
	return big.NewInt(0), nil
}
