// Package memory is the in-process store implementation. It backs tests
// and single-process deployments; every method copies on the way in and
// out so callers never share mutable state with the store.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/ledgerline/ledgerline/internal/store"
)

// Store implements every store interface over guarded maps.
type Store struct {
	mu sync.Mutex

	categories map[string]store.Category
	rules      map[string]store.CategoryRule
	businesses map[string]store.Business

	batches map[string]store.Batch
	items   map[string]store.BatchItem

	activity []store.ActivityEntry

	documents    map[string]store.DocumentRecord
	transactions []store.TransactionRecord
	fileHashes   map[string]string // userID + "\x00" + checksum -> documentID
}

// New builds an empty store.
func New() *Store {
	return &Store{
		categories: make(map[string]store.Category),
		rules:      make(map[string]store.CategoryRule),
		businesses: make(map[string]store.Business),
		batches:    make(map[string]store.Batch),
		items:      make(map[string]store.BatchItem),
		documents:  make(map[string]store.DocumentRecord),
		fileHashes: make(map[string]string),
	}
}

// --- CategoryStore ---

func (s *Store) ListCategories(_ context.Context, userID string) ([]store.Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []store.Category
	for _, c := range s.categories {
		if c.Scope == store.ScopeSystem || c.UserID == userID {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *Store) ListRules(_ context.Context, userID string) ([]store.CategoryRule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []store.CategoryRule
	for _, r := range s.rules {
		if r.UserID == userID {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Position < out[j].Position })
	return out, nil
}

func (s *Store) ListBusinesses(_ context.Context, userID string) ([]store.Business, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []store.Business
	for _, b := range s.businesses {
		if b.UserID == userID {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *Store) SeedSystemCategories(_ context.Context, categories []store.Category) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing := make(map[string]bool, len(s.categories))
	for _, c := range s.categories {
		if c.Scope == store.ScopeSystem {
			existing[c.Name] = true
		}
	}
	for _, c := range categories {
		if existing[c.Name] {
			continue
		}
		c.Scope = store.ScopeSystem
		s.categories[c.ID] = c
	}
	return nil
}

// AddCategory installs a user category. Test and importer convenience.
func (s *Store) AddCategory(c store.Category) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.categories[c.ID] = c
}

// AddRule installs a categorization rule.
func (s *Store) AddRule(r store.CategoryRule) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rules[r.ID] = r
}

// AddBusiness installs a business.
func (s *Store) AddBusiness(b store.Business) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.businesses[b.ID] = b
}

// --- BatchStore ---

func (s *Store) CreateBatch(_ context.Context, batch *store.Batch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.batches[batch.ID]; exists {
		return fmt.Errorf("memory: batch %s already exists", batch.ID)
	}
	s.batches[batch.ID] = *batch
	return nil
}

func (s *Store) CreateItem(_ context.Context, item *store.BatchItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.items[item.ID]; exists {
		return fmt.Errorf("memory: item %s already exists", item.ID)
	}
	if item.Status == "" {
		item.Status = store.ItemQueued
	}
	s.items[item.ID] = *item
	return nil
}

func (s *Store) GetBatch(_ context.Context, batchID string) (*store.Batch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.batches[batchID]
	if !ok {
		return nil, fmt.Errorf("memory: batch %s not found", batchID)
	}
	copied := b
	return &copied, nil
}

func (s *Store) GetItem(_ context.Context, itemID string) (*store.BatchItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	item, ok := s.items[itemID]
	if !ok {
		return nil, fmt.Errorf("memory: item %s not found", itemID)
	}
	copied := item
	return &copied, nil
}

func (s *Store) ListItems(_ context.Context, batchID string) ([]store.BatchItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []store.BatchItem
	for _, item := range s.items {
		if item.BatchID == batchID {
			out = append(out, item)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Order < out[j].Order })
	return out, nil
}

func (s *Store) TransitionItem(_ context.Context, itemID string, from, to store.ItemStatus) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	item, ok := s.items[itemID]
	if !ok {
		return false, fmt.Errorf("memory: item %s not found", itemID)
	}
	if item.Status != from {
		return false, nil
	}
	item.Status = to
	s.items[itemID] = item
	return true, nil
}

func (s *Store) FinishItem(_ context.Context, itemID string, status store.ItemStatus, errorMsg, documentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	item, ok := s.items[itemID]
	if !ok {
		return fmt.Errorf("memory: item %s not found", itemID)
	}
	if !status.Terminal() {
		return fmt.Errorf("memory: FinishItem with non-terminal status %q", status)
	}
	item.Status = status
	item.Error = errorMsg
	item.DocumentID = documentID
	s.items[itemID] = item
	return nil
}

func (s *Store) CancelBatch(_ context.Context, batchID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.batches[batchID]
	if !ok {
		return fmt.Errorf("memory: batch %s not found", batchID)
	}
	b.Cancelled = true
	s.batches[batchID] = b
	return nil
}

// --- ActivityStore ---

func (s *Store) Append(_ context.Context, entry store.ActivityEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.activity = append(s.activity, entry)
	return nil
}

// Activities returns the appended entries for a batch, in append order.
func (s *Store) Activities(batchID string) []store.ActivityEntry {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []store.ActivityEntry
	for _, e := range s.activity {
		if e.BatchID == batchID {
			out = append(out, e)
		}
	}
	return out
}

// --- DocumentStore ---

func (s *Store) InsertDocument(_ context.Context, doc *store.DocumentRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.documents[doc.DocumentID]; exists {
		return fmt.Errorf("memory: document %s already exists", doc.DocumentID)
	}
	s.documents[doc.DocumentID] = *doc
	return nil
}

func (s *Store) InsertTransactions(_ context.Context, txs []*store.TransactionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, tx := range txs {
		s.transactions = append(s.transactions, *tx)
	}
	return nil
}

func (s *Store) FindFileHash(_ context.Context, userID, checksum string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fileHashes[hashKey(userID, checksum)], nil
}

func (s *Store) RecordFileHash(_ context.Context, userID, checksum, documentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fileHashes[hashKey(userID, checksum)] = documentID
	return nil
}

// Documents returns all persisted documents. Test convenience.
func (s *Store) Documents() []store.DocumentRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]store.DocumentRecord, 0, len(s.documents))
	for _, d := range s.documents {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DocumentID < out[j].DocumentID })
	return out
}

// Transactions returns all persisted transactions in insertion order.
func (s *Store) Transactions() []store.TransactionRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]store.TransactionRecord, len(s.transactions))
	copy(out, s.transactions)
	return out
}

func hashKey(userID, checksum string) string {
	return userID + "\x00" + checksum
}
