package storage

import "context"

// Prefixed namespaces every key of an underlying storage.
type Prefixed struct {
	prefix string
	next   Storage
}

// WithPrefix returns a storage that prepends prefix to every key.
func WithPrefix(s Storage, prefix string) *Prefixed {
	return &Prefixed{prefix: prefix, next: s}
}

func (p *Prefixed) GetItem(ctx context.Context, key string) (string, bool, error) {
	return p.next.GetItem(ctx, p.prefix+key)
}

func (p *Prefixed) SetItem(ctx context.Context, key, value string) error {
	return p.next.SetItem(ctx, p.prefix+key, value)
}

func (p *Prefixed) RemoveItem(ctx context.Context, key string) error {
	return p.next.RemoveItem(ctx, p.prefix+key)
}
