package tieba

import (
	"math/rand"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/d60-Lab/tieba-pipeline/pkg/logger"
)

// Account 一对登录凭证，加载后只读
type Account struct {
	BDUSS  string
	SToken string
	Label  string
}

// Valid 有非空 BDUSS 即视为可用
func (a Account) Valid() bool { return strings.TrimSpace(a.BDUSS) != "" }

// AccountPool 账号轮换池。抓取用 Next 轮询摊平负载，回帖用 Random
type AccountPool struct {
	mu       sync.Mutex
	accounts []Account
	cursor   int
}

// NewAccountPool 过滤无效账号；全无效时保留一个匿名账号
// （匿名可抓取，不可回帖）
func NewAccountPool(accounts []Account) *AccountPool {
	valid := make([]Account, 0, len(accounts))
	for _, a := range accounts {
		if a.Valid() {
			valid = append(valid, a)
		}
	}
	if len(valid) == 0 {
		logger.Warn("account pool empty, using anonymous account")
		valid = []Account{{}}
	} else {
		logger.Info("account pool loaded", zap.Int("accounts", len(valid)))
	}
	return &AccountPool{accounts: valid}
}

// Next 轮询取号
func (p *AccountPool) Next() Account {
	p.mu.Lock()
	defer p.mu.Unlock()
	a := p.accounts[p.cursor%len(p.accounts)]
	p.cursor++
	return a
}

// Random 随机取号
func (p *AccountPool) Random() Account {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.accounts[rand.Intn(len(p.accounts))]
}

func (p *AccountPool) All() []Account {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Account, len(p.accounts))
	copy(out, p.accounts)
	return out
}

func (p *AccountPool) Size() int { return len(p.accounts) }

// HasAuthenticated 至少一个账号可回帖
func (p *AccountPool) HasAuthenticated() bool {
	for _, a := range p.accounts {
		if a.Valid() {
			return true
		}
	}
	return false
}
