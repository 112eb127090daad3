package kv

import (
	"net/url"
	"strconv"
	"time"

	"github.com/cbconsul/consul_sdk_go/internal/consulapi"
)

// Verb identifies the kind of key/value action an Operation performs.
type Verb string

const (
	VerbSet        Verb = "set"
	VerbCAS        Verb = "cas"
	VerbLock       Verb = "lock"
	VerbUnlock     Verb = "unlock"
	VerbGet        Verb = "get"
	VerbAcquire    Verb = "acquire"
	VerbRelease    Verb = "release"
	VerbGetTree    Verb = "get-tree"
	VerbDelete     Verb = "delete"
	VerbDeleteTree Verb = "delete-tree"
	VerbDeleteCAS  Verb = "delete-cas"
	VerbWatch      Verb = "watch"
)

// Params is the closed set of optional query modifiers. Nil fields are not
// sent.
type Params struct {
	Raw       *bool
	Separator *string
	Keys      *bool
	Recurse   *bool
	Index     *uint64
	Wait      *string
	Flags     *uint64
	CAS       *uint64
	Acquire   *string
	Release   *string
}

// Param is a single rendered query parameter.
type Param struct {
	Name  string
	Value string
}

// List renders the populated modifiers in declaration order.
func (p Params) List() []Param {
	var out []Param
	addBool := func(name string, v *bool) {
		if v != nil {
			out = append(out, Param{Name: name, Value: strconv.FormatBool(*v)})
		}
	}
	addString := func(name string, v *string) {
		if v != nil {
			out = append(out, Param{Name: name, Value: *v})
		}
	}
	addUint := func(name string, v *uint64) {
		if v != nil {
			out = append(out, Param{Name: name, Value: strconv.FormatUint(*v, 10)})
		}
	}
	addBool("raw", p.Raw)
	addString("separator", p.Separator)
	addBool("keys", p.Keys)
	addBool("recurse", p.Recurse)
	addUint("index", p.Index)
	addString("wait", p.Wait)
	addUint("flags", p.Flags)
	addUint("cas", p.CAS)
	addString("acquire", p.Acquire)
	addString("release", p.Release)
	return out
}

func (p Params) clone() Params {
	c := Params{}
	if p.Raw != nil {
		c.Raw = ptr(*p.Raw)
	}
	if p.Separator != nil {
		c.Separator = ptr(*p.Separator)
	}
	if p.Keys != nil {
		c.Keys = ptr(*p.Keys)
	}
	if p.Recurse != nil {
		c.Recurse = ptr(*p.Recurse)
	}
	if p.Index != nil {
		c.Index = ptr(*p.Index)
	}
	if p.Wait != nil {
		c.Wait = ptr(*p.Wait)
	}
	if p.Flags != nil {
		c.Flags = ptr(*p.Flags)
	}
	if p.CAS != nil {
		c.CAS = ptr(*p.CAS)
	}
	if p.Acquire != nil {
		c.Acquire = ptr(*p.Acquire)
	}
	if p.Release != nil {
		c.Release = ptr(*p.Release)
	}
	return c
}

// Operation is an immutable description of one key/value action. Build it
// with the Op* factories; the zero value is not a valid operation.
type Operation struct {
	verb   Verb
	key    string
	value  []byte
	params Params
}

func (o Operation) Verb() Verb  { return o.verb }
func (o Operation) Key() string { return o.key }

// Value returns a copy of the payload written by PUT operations.
func (o Operation) Value() []byte {
	if o.value == nil {
		return nil
	}
	return append([]byte(nil), o.value...)
}

// Params returns a copy of the operation's modifiers.
func (o Operation) Params() Params { return o.params.clone() }

// Query renders the populated modifiers as URL query values. Verb, key and
// value never appear here.
func (o Operation) Query() url.Values {
	list := o.params.List()
	if len(list) == 0 {
		return nil
	}
	q := make(url.Values, len(list))
	for _, p := range list {
		q.Add(p.Name, p.Value)
	}
	return q
}

// WithKey returns a copy of the operation addressing key instead.
func (o Operation) WithKey(key string) Operation {
	o.key = key
	o.value = o.Value()
	o.params = o.params.clone()
	return o
}

// WriteOption sets optional modifiers on write operations.
type WriteOption func(*Params)

// WithFlags stores an opaque 64-bit flag value alongside the key.
func WithFlags(flags uint64) WriteOption {
	return func(p *Params) {
		p.Flags = ptr(flags)
	}
}

func applyWrite(p *Params, opts []WriteOption) {
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
}

// OpGet reads a single key and decodes it into a Record.
func OpGet(key string) Operation {
	return Operation{verb: VerbGet, key: key}
}

// OpGetRaw reads the stored bytes of a key without the JSON envelope.
func OpGetRaw(key string) Operation {
	return Operation{verb: VerbGet, key: key, params: Params{Raw: ptr(true)}}
}

// OpGetTree reads every record under prefix. The wire recurse flag is always
// set; recurse only decides whether the separator is sent empty.
func OpGetTree(prefix string, recurse bool, separator string) Operation {
	return Operation{verb: VerbGetTree, key: prefix, params: Params{
		Recurse:   ptr(true),
		Separator: ptr(treeSeparator(recurse, separator)),
	}}
}

// OpListTree lists the keys under prefix without their values.
func OpListTree(prefix string, recurse bool, separator string) Operation {
	return Operation{verb: VerbGetTree, key: prefix, params: Params{
		Keys:      ptr(true),
		Separator: ptr(treeSeparator(recurse, separator)),
	}}
}

func treeSeparator(recurse bool, separator string) string {
	if recurse {
		return ""
	}
	return separator
}

// OpSet writes value under key.
func OpSet(key string, value []byte, opts ...WriteOption) Operation {
	op := Operation{verb: VerbSet, key: key, value: cloneBytes(value)}
	applyWrite(&op.params, opts)
	return op
}

// OpSetCAS writes value only if the key's ModifyIndex equals index. Index 0
// writes only when the key does not exist yet.
func OpSetCAS(key string, value []byte, index uint64, opts ...WriteOption) Operation {
	op := Operation{verb: VerbCAS, key: key, value: cloneBytes(value), params: Params{CAS: ptr(index)}}
	applyWrite(&op.params, opts)
	return op
}

// OpLock acquires key for session. The session id is also stored as value.
func OpLock(key, session string, opts ...WriteOption) Operation {
	op := Operation{verb: VerbAcquire, key: key, value: []byte(session), params: Params{Acquire: ptr(session)}}
	applyWrite(&op.params, opts)
	return op
}

// OpUnlock releases key held by session.
func OpUnlock(key, session string, opts ...WriteOption) Operation {
	op := Operation{verb: VerbRelease, key: key, value: []byte(session), params: Params{Release: ptr(session)}}
	applyWrite(&op.params, opts)
	return op
}

// OpDelete removes a single key.
func OpDelete(key string) Operation {
	return Operation{verb: VerbDelete, key: key}
}

// OpDeleteCAS removes key only if its ModifyIndex equals index.
func OpDeleteCAS(key string, index uint64) Operation {
	return Operation{verb: VerbDeleteCAS, key: key, params: Params{CAS: ptr(index)}}
}

// OpDeleteTree removes every key under prefix.
func OpDeleteTree(prefix string) Operation {
	return Operation{verb: VerbDeleteTree, key: prefix, params: Params{Recurse: ptr(true)}}
}

// OpWatch is a blocking read of key: the server holds the request until the
// key's index moves past index or wait elapses. A zero wait leaves the
// server default.
func OpWatch(key string, index uint64, wait time.Duration) Operation {
	op := Operation{verb: VerbWatch, key: key, params: Params{Index: ptr(index)}}
	if wait > 0 {
		op.params.Wait = ptr(formatWait(wait))
	}
	return op
}

// formatWait renders durations the way Consul parses them ("10s", "1500ms").
func formatWait(d time.Duration) string {
	if d%time.Second == 0 {
		return strconv.FormatInt(int64(d/time.Second), 10) + "s"
	}
	return strconv.FormatInt(d.Milliseconds(), 10) + "ms"
}

// Method maps the verb onto the HTTP method.
func (o Operation) Method() string {
	switch o.verb {
	case VerbDeleteCAS, VerbDeleteTree, VerbDelete:
		return "DELETE"
	case VerbSet, VerbCAS, VerbLock, VerbUnlock, VerbAcquire, VerbRelease:
		return "PUT"
	default:
		return "GET"
	}
}

// Path returns the API path for the operation's key.
func (o Operation) Path() string {
	return consulapi.KVPath(o.key)
}

func ptr[T any](v T) *T { return &v }

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	return append([]byte(nil), b...)
}
