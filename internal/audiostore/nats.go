package audiostore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// DefaultBucket is used when no bucket name is configured.
const DefaultBucket = "dialoguelab-audio"

const contentTypeHeader = "Content-Type"

var _ Store = (*NATSStore)(nil)

// NATSStore keeps audio in a JetStream object store bucket.
type NATSStore struct {
	conn   *nats.Conn
	owned  bool
	bucket string
	store  nats.ObjectStore
}

// NATSOption configures a [NATSStore].
type NATSOption func(*nats.ObjectStoreConfig)

// WithMemoryStorage keeps the bucket in server memory instead of on disk.
func WithMemoryStorage() NATSOption {
	return func(c *nats.ObjectStoreConfig) { c.Storage = nats.MemoryStorage }
}

// DialNATS connects to the server at url and opens bucket. The connection is
// closed by [NATSStore.Close].
func DialNATS(_ context.Context, url, bucket string, opts ...NATSOption) (*NATSStore, error) {
	if url == "" {
		url = nats.DefaultURL
	}
	nc, err := nats.Connect(url, nats.Name("dialoguelab"))
	if err != nil {
		return nil, fmt.Errorf("audiostore: connect %s: %w", url, err)
	}
	s, err := NewNATSStore(nc, bucket, opts...)
	if err != nil {
		nc.Close()
		return nil, err
	}
	s.owned = true
	return s, nil
}

// NewNATSStore creates bucket on an existing connection or binds to it when
// it already exists. The caller keeps ownership of nc.
func NewNATSStore(nc *nats.Conn, bucket string, opts ...NATSOption) (*NATSStore, error) {
	if bucket == "" {
		bucket = DefaultBucket
	}
	js, err := nc.JetStream()
	if err != nil {
		return nil, fmt.Errorf("audiostore: jetstream: %w", err)
	}

	cfg := &nats.ObjectStoreConfig{
		Bucket:      bucket,
		Description: "Rendered dialogue audio.",
		Storage:     nats.FileStorage,
		Replicas:    1,
	}
	for _, o := range opts {
		o(cfg)
	}

	store, err := js.CreateObjectStore(cfg)
	if err != nil {
		if !errors.Is(err, jetstream.ErrBucketExists) && !errors.Is(err, nats.ErrStreamNameAlreadyInUse) {
			return nil, fmt.Errorf("audiostore: create bucket %q: %w", bucket, err)
		}
		store, err = js.ObjectStore(bucket)
		if err != nil {
			return nil, fmt.Errorf("audiostore: bind bucket %q: %w", bucket, err)
		}
	}
	return &NATSStore{conn: nc, bucket: bucket, store: store}, nil
}

// Bucket returns the bucket name.
func (n *NATSStore) Bucket() string { return n.bucket }

// Put implements [Store].
func (n *NATSStore) Put(ctx context.Context, key string, obj Object) error {
	meta := &nats.ObjectMeta{Name: key, Headers: nats.Header{}}
	if obj.MIMEType != "" {
		meta.Headers.Set(contentTypeHeader, obj.MIMEType)
	}
	if _, err := n.store.Put(meta, bytes.NewReader(obj.Data), nats.Context(ctx)); err != nil {
		return fmt.Errorf("audiostore: put %q to bucket %q: %w", key, n.bucket, err)
	}
	return nil
}

// Get implements [Store].
func (n *NATSStore) Get(ctx context.Context, key string) (*Object, error) {
	res, err := n.store.Get(key, nats.Context(ctx))
	if errors.Is(err, nats.ErrObjectNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("audiostore: get %q from bucket %q: %w", key, n.bucket, err)
	}

	data, readErr := io.ReadAll(res)
	info, infoErr := res.Info()
	closeErr := res.Close()
	if readErr != nil {
		return nil, fmt.Errorf("audiostore: read %q: %w", key, readErr)
	}
	if infoErr != nil {
		return nil, fmt.Errorf("audiostore: info %q: %w", key, infoErr)
	}
	if closeErr != nil {
		return nil, fmt.Errorf("audiostore: close %q: %w", key, closeErr)
	}

	obj := &Object{Data: data}
	if info.Headers != nil {
		obj.MIMEType = info.Headers.Get(contentTypeHeader)
	}
	return obj, nil
}

// Delete implements [Store].
func (n *NATSStore) Delete(_ context.Context, key string) error {
	err := n.store.Delete(key)
	if err != nil && !errors.Is(err, nats.ErrObjectNotFound) {
		return fmt.Errorf("audiostore: delete %q: %w", key, err)
	}
	return nil
}

// Ping implements [Store].
func (n *NATSStore) Ping(context.Context) error {
	if !n.conn.IsConnected() {
		return fmt.Errorf("audiostore: nats connection %s", n.conn.Status())
	}
	return nil
}

// Close drains the connection when it was opened by [DialNATS].
func (n *NATSStore) Close() error {
	if !n.owned {
		return nil
	}
	return n.conn.Drain()
}
