package identity

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/expensly/authclient/internal/core/domain"
	"github.com/expensly/authclient/internal/core/ports"
)

// MemoryAccounts is an in-process AccountRepository.
type MemoryAccounts struct {
	mu   sync.RWMutex
	byID map[string]*domain.Account
}

var _ ports.AccountRepository = (*MemoryAccounts)(nil)

func NewMemoryAccounts() *MemoryAccounts {
	return &MemoryAccounts{byID: make(map[string]*domain.Account)}
}

func cloneAccount(a *domain.Account) *domain.Account {
	c := *a
	c.BackupCodes = append([]string(nil), a.BackupCodes...)
	if a.External != nil {
		c.External = make(map[domain.SSOProvider]string, len(a.External))
		for k, v := range a.External {
			c.External[k] = v
		}
	}
	if a.User.LastLoginAt != nil {
		t := *a.User.LastLoginAt
		c.User.LastLoginAt = &t
	}
	return &c
}

func (m *MemoryAccounts) FindByEmail(_ context.Context, email string) (*domain.Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, a := range m.byID {
		if strings.EqualFold(a.User.Email, email) {
			return cloneAccount(a), nil
		}
	}
	return nil, domain.ErrUserNotFound
}

func (m *MemoryAccounts) FindByID(_ context.Context, id string) (*domain.Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.byID[id]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	return cloneAccount(a), nil
}

func (m *MemoryAccounts) FindByExternal(_ context.Context, provider domain.SSOProvider, subject string) (*domain.Account, error) {
	if subject == "" {
		return nil, domain.ErrUserNotFound
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, a := range m.byID {
		if a.External[provider] == subject {
			return cloneAccount(a), nil
		}
	}
	return nil, domain.ErrUserNotFound
}

func (m *MemoryAccounts) Create(_ context.Context, account *domain.Account) (*domain.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.byID {
		if strings.EqualFold(a.User.Email, account.User.Email) {
			return nil, domain.ErrUserExists
		}
	}
	m.byID[account.User.ID] = cloneAccount(account)
	return cloneAccount(account), nil
}

func (m *MemoryAccounts) Update(_ context.Context, account *domain.Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byID[account.User.ID]; !ok {
		return domain.ErrUserNotFound
	}
	m.byID[account.User.ID] = cloneAccount(account)
	return nil
}

// MemoryCompanies is an in-process CompanyRepository.
type MemoryCompanies struct {
	mu   sync.RWMutex
	byID map[string]domain.Company
}

var _ ports.CompanyRepository = (*MemoryCompanies)(nil)

func NewMemoryCompanies() *MemoryCompanies {
	return &MemoryCompanies{byID: make(map[string]domain.Company)}
}

func (m *MemoryCompanies) FindByID(_ context.Context, id string) (*domain.Company, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.byID[id]
	if !ok {
		return nil, domain.ErrCompanyNotFound
	}
	return &c, nil
}

func (m *MemoryCompanies) FindByDomain(_ context.Context, domainName string) (*domain.Company, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, c := range m.byID {
		if c.Domain != "" && strings.EqualFold(c.Domain, domainName) {
			return &c, nil
		}
	}
	return nil, domain.ErrCompanyNotFound
}

func (m *MemoryCompanies) Create(_ context.Context, c *domain.Company) (*domain.Company, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byID[c.ID] = *c
	out := *c
	return &out, nil
}

type memoryToken struct {
	subject   string
	expiresAt time.Time
}

// MemoryTokens is an in-process TokenStore.
type MemoryTokens struct {
	mu     sync.Mutex
	tokens map[string]memoryToken
	now    func() time.Time
}

var _ ports.TokenStore = (*MemoryTokens)(nil)

func NewMemoryTokens() *MemoryTokens {
	return &MemoryTokens{tokens: make(map[string]memoryToken), now: time.Now}
}

func (m *MemoryTokens) Put(_ context.Context, kind domain.TokenKind, token, subject string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tokens[string(kind)+":"+token] = memoryToken{subject: subject, expiresAt: m.now().Add(ttl)}
	return nil
}

func (m *MemoryTokens) Take(_ context.Context, kind domain.TokenKind, token string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := string(kind) + ":" + token
	t, ok := m.tokens[key]
	if !ok {
		return "", domain.ErrTokenInvalid
	}
	delete(m.tokens, key)
	if !m.now().Before(t.expiresAt) {
		return "", domain.ErrTokenInvalid
	}
	return t.subject, nil
}

func (m *MemoryTokens) Delete(_ context.Context, kind domain.TokenKind, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.tokens, string(kind)+":"+token)
	return nil
}
