package session

import (
	"context"
	"sync"

	"github.com/hitoshi/musify/internal/model"
)

// restoreFunc は永続化されたセッションからIdentityを復元する。
// 復元できない場合はnilを返す。
type restoreFunc func(ctx context.Context) *model.Identity

// signOutFunc はIdP側のセッション状態を破棄する。
type signOutFunc func(ctx context.Context) error

// providerSource はブラウザセッション1つ分のIdP通知を発行するSource。
// 最初のSubscribeで非同期に復元を開始し、結果を全リスナーへ通知する。
type providerSource struct {
	restore restoreFunc
	signOut signOutFunc

	mu        sync.Mutex
	listeners map[int]func(*model.Identity)
	order     []int
	nextID    int
	known     bool
	identity  *model.Identity
	signedOut bool
	started   bool
	ctx       context.Context
	cancel    context.CancelFunc
}

// newRestoringSource は復元処理を伴うSourceを生成する。
func newRestoringSource(restore restoreFunc, signOut signOutFunc) *providerSource {
	ctx, cancel := context.WithCancel(context.Background())
	return &providerSource{
		restore:   restore,
		signOut:   signOut,
		listeners: make(map[int]func(*model.Identity)),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// newKnownSource は認証状態が確定済みのSourceを生成する。
// サインイン直後や匿名アクセスで使う。
func newKnownSource(id *model.Identity, signOut signOutFunc) *providerSource {
	src := newRestoringSource(nil, signOut)
	src.known = true
	src.identity = id
	return src
}

// Subscribe はリスナーを登録する。状態が確定済みなら登録時に現在値を通知する。
func (p *providerSource) Subscribe(fn func(*model.Identity)) (cancel func()) {
	p.mu.Lock()
	id := p.nextID
	p.nextID++
	p.listeners[id] = fn
	p.order = append(p.order, id)

	known, current := p.known, p.identity
	startRestore := !known && !p.started && p.restore != nil
	if startRestore {
		p.started = true
	}
	p.mu.Unlock()

	if known {
		fn(current)
	}
	if startRestore {
		go p.runRestore()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			p.mu.Lock()
			delete(p.listeners, id)
			for i, v := range p.order {
				if v == id {
					p.order = append(p.order[:i], p.order[i+1:]...)
					break
				}
			}
			empty := len(p.listeners) == 0
			p.mu.Unlock()

			if empty {
				p.cancel()
			}
		})
	}
}

// SignOut はIdP側のセッションを破棄し、リスナーへ未認証を通知する。
// 破棄に失敗しても通知は行う。
func (p *providerSource) SignOut(ctx context.Context) error {
	p.mu.Lock()
	p.signedOut = true
	p.mu.Unlock()
	p.cancel()

	var err error
	if p.signOut != nil {
		err = p.signOut(ctx)
	}
	p.emit(nil)
	return err
}

func (p *providerSource) runRestore() {
	p.emitUnlessSignedOut(p.restore(p.ctx))
}

// emitUnlessSignedOut は復元結果を通知する。
// 復元中にサインアウトされた場合は未認証を通知済みなので結果を捨てる。
// 判定と状態の更新は同じロックの中で行う。
func (p *providerSource) emitUnlessSignedOut(id *model.Identity) {
	p.mu.Lock()
	if p.signedOut {
		p.mu.Unlock()
		return
	}
	fns := p.setLocked(id)
	p.mu.Unlock()

	for _, fn := range fns {
		fn(id)
	}
}

func (p *providerSource) emit(id *model.Identity) {
	p.mu.Lock()
	fns := p.setLocked(id)
	p.mu.Unlock()

	for _, fn := range fns {
		fn(id)
	}
}

// setLocked は状態を確定させ、通知先のリスナーを登録順に返す。p.muを保持して呼ぶ。
func (p *providerSource) setLocked(id *model.Identity) []func(*model.Identity) {
	p.known = true
	p.identity = id
	fns := make([]func(*model.Identity), 0, len(p.order))
	for _, k := range p.order {
		fns = append(fns, p.listeners[k])
	}
	return fns
}
