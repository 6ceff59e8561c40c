// Package session はブラウザセッションごとの認証状態ストアを提供する。
//
// Storeは1つのSourceにリスナーを1つだけ登録し、IdPから届くIdentityの変化を
// Sessionスナップショットとして購読者へ順番に配信する。
// Loadingは最初の通知で真から偽になり、その後は二度と真にならない。
package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hitoshi/musify/internal/model"
)

// Source はIdPのセッション変更通知を抽象化したインターフェース。
type Source interface {
	// Subscribe はIdentityの変化を受け取るリスナーを登録する。
	// 登録後、認証状態が確定した時点で少なくとも1回fnが呼ばれる。
	// 戻り値の関数でリスナーを解除する。
	Subscribe(fn func(*model.Identity)) (cancel func())
	// SignOut はIdP側のセッション状態を破棄する。
	SignOut(ctx context.Context) error
}

// Store はブラウザセッション1つ分の認証状態を保持する。
// 書き込みはSourceからの通知とLogoutのみで、読み取りは任意のgoroutineから行える。
type Store struct {
	src Source

	mu          sync.Mutex
	current     model.Session
	listeners   map[int]func(model.Session)
	order       []int
	nextID      int
	queue       []model.Session
	dispatching bool
	closed      bool
	unsubscribe func()

	settled    chan struct{}
	settleOnce sync.Once
	startOnce  sync.Once
	closeOnce  sync.Once
}

// NewStore はLoading状態のStoreを生成する。Startを呼ぶまでSourceには登録しない。
func NewStore(src Source) *Store {
	return &Store{
		src:       src,
		current:   model.Session{Loading: true},
		listeners: make(map[int]func(model.Session)),
		settled:   make(chan struct{}),
	}
}

// Start はSourceにリスナーを登録する。複数回呼んでも登録は1回だけ。
func (s *Store) Start() {
	s.startOnce.Do(func() {
		cancel := s.src.Subscribe(s.onIdentity)

		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			cancel()
			return
		}
		s.unsubscribe = cancel
		s.mu.Unlock()
	})
}

// Current は現在のSessionスナップショットを返す。
func (s *Store) Current() model.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Subscribe はSession変化の購読者を登録する。
// 購読者には変化のたびに、発生順にスナップショットが届く。
func (s *Store) Subscribe(fn func(model.Session)) (cancel func()) {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	s.order = append(s.order, id)
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.listeners, id)
			for i, v := range s.order {
				if v == id {
					s.order = append(s.order[:i], s.order[i+1:]...)
					break
				}
			}
			s.mu.Unlock()
		})
	}
}

// Settled はLoadingが偽になった時点でcloseされるチャネルを返す。
func (s *Store) Settled() <-chan struct{} {
	return s.settled
}

// AwaitSettled は認証状態が確定するまで最大dだけ待ち、その時点のスナップショットを返す。
// 待機中にタイムアウトした場合はLoading状態のスナップショットが返る。
func (s *Store) AwaitSettled(ctx context.Context, d time.Duration) model.Session {
	if d <= 0 {
		return s.Current()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-s.settled:
	case <-timer.C:
	case <-ctx.Done():
	}
	return s.Current()
}

// Logout はIdP側のセッションを破棄し、保持しているIdentityを必ず消去する。
// IdPの呼び出しに失敗した場合もIdentityは消去し、AuthErrorを返す。
func (s *Store) Logout(ctx context.Context) error {
	err := s.src.SignOut(ctx)
	s.publish(model.Session{})
	if err != nil {
		return fmt.Errorf("%w: %v", model.NewLogoutFailedError(), err)
	}
	return nil
}

// Close はSourceのリスナーを解除し、以降の通知を無視する。
func (s *Store) Close() {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		cancel := s.unsubscribe
		s.unsubscribe = nil
		s.listeners = make(map[int]func(model.Session))
		s.order = nil
		s.mu.Unlock()

		if cancel != nil {
			cancel()
		}
	})
}

func (s *Store) onIdentity(id *model.Identity) {
	s.publish(model.Session{Identity: id})
}

// publish は新しいスナップショットを反映し、購読者へ配信する。
// 配信中に別の更新が来た場合はキューに積み、現在の配信者がまとめて順番に配る。
// 購読者の中からLogoutを呼んでもデッドロックしない。
func (s *Store) publish(next model.Session) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.current = next
	if !next.Loading {
		s.settleOnce.Do(func() { close(s.settled) })
	}
	s.queue = append(s.queue, next)
	if s.dispatching {
		s.mu.Unlock()
		return
	}
	s.dispatching = true

	for len(s.queue) > 0 && !s.closed {
		snap := s.queue[0]
		s.queue = s.queue[1:]
		fns := make([]func(model.Session), 0, len(s.order))
		for _, id := range s.order {
			fns = append(fns, s.listeners[id])
		}
		s.mu.Unlock()

		for _, fn := range fns {
			fn(snap)
		}

		s.mu.Lock()
	}
	s.queue = nil
	s.dispatching = false
	s.mu.Unlock()
}
