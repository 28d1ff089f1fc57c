package app

import "sync"

// WebhookRegistry maps webhook tokens to the controllers that own them. The
// transport resolves request paths through it; a miss means the request gets
// a generic not-found and nothing else happens.
type WebhookRegistry struct {
	mu    sync.RWMutex
	lines map[string]*LineController
}

func NewWebhookRegistry() *WebhookRegistry {
	return &WebhookRegistry{lines: make(map[string]*LineController)}
}

// Register binds token to ctrl, replacing any previous binding.
func (r *WebhookRegistry) Register(token string, ctrl *LineController) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lines[token] = ctrl
}

// Unregister removes token. Unknown tokens are a no-op, so teardown paths
// can call it unconditionally.
func (r *WebhookRegistry) Unregister(token string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.lines, token)
}

// Resolve returns the controller owning token, or nil.
func (r *WebhookRegistry) Resolve(token string) *LineController {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.lines[token]
}
