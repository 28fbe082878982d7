// Package baastest provides in-memory stand-ins for the hosted auth and
// storage services.
package baastest

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"ecodigital/baas"
)

type account struct {
	user     baas.User
	password string
}

// Auth is a fake GoTrue. Set the Fail* fields to inject errors.
type Auth struct {
	mu       sync.Mutex
	accounts map[string]*account // by email
	tokens   map[string]string   // token -> user id

	FailCreate         error
	FailDelete         error
	FailUpdatePassword error

	Deleted []string
}

func NewAuth() *Auth {
	return &Auth{accounts: map[string]*account{}, tokens: map[string]string{}}
}

// AddUser registers an identity with a fixed id and returns a valid token for it.
func (a *Auth) AddUser(id, email, password string) string {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.accounts[strings.ToLower(email)] = &account{user: baas.User{ID: id, Email: email}, password: password}
	token := "tok-" + id
	a.tokens[token] = id
	return token
}

// Password returns the current password of email, for assertions.
func (a *Auth) Password(email string) string {
	a.mu.Lock()
	defer a.mu.Unlock()
	if acc, ok := a.accounts[strings.ToLower(email)]; ok {
		return acc.password
	}
	return ""
}

// HasUser reports whether id still exists.
func (a *Auth) HasUser(id string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.byID(id) != nil
}

func (a *Auth) byID(id string) *account {
	for _, acc := range a.accounts {
		if acc.user.ID == id {
			return acc
		}
	}
	return nil
}

func (a *Auth) SignInWithPassword(_ context.Context, email, password string) (*baas.Session, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	acc, ok := a.accounts[strings.ToLower(email)]
	if !ok || acc.password != password {
		return nil, &baas.AuthError{Status: http.StatusBadRequest, Message: "Invalid login credentials"}
	}
	token := "tok-" + uuid.NewString()
	a.tokens[token] = acc.user.ID
	return &baas.Session{AccessToken: token, RefreshToken: "r-" + token, TokenType: "bearer", ExpiresIn: 3600, User: acc.user}, nil
}

func (a *Auth) GetUser(_ context.Context, token string) (*baas.User, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	id, ok := a.tokens[token]
	if !ok {
		return nil, &baas.AuthError{Status: http.StatusUnauthorized, Message: "invalid JWT"}
	}
	acc := a.byID(id)
	if acc == nil {
		return nil, &baas.AuthError{Status: http.StatusNotFound, Message: "User not found"}
	}
	u := acc.user
	return &u, nil
}

func (a *Auth) SignOut(_ context.Context, token string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.tokens, token)
	return nil
}

func (a *Auth) UpdatePassword(_ context.Context, token, password string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.FailUpdatePassword != nil {
		return a.FailUpdatePassword
	}
	acc := a.byID(a.tokens[token])
	if acc == nil {
		return &baas.AuthError{Status: http.StatusUnauthorized, Message: "invalid JWT"}
	}
	acc.password = password
	return nil
}

func (a *Auth) AdminCreateUser(_ context.Context, email, password string, metadata map[string]any) (*baas.User, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.FailCreate != nil {
		return nil, a.FailCreate
	}
	key := strings.ToLower(email)
	if _, ok := a.accounts[key]; ok {
		return nil, &baas.AuthError{Status: http.StatusUnprocessableEntity, Message: "User already registered"}
	}
	u := baas.User{ID: uuid.NewString(), Email: email, UserMetadata: metadata}
	a.accounts[key] = &account{user: u, password: password}
	return &u, nil
}

func (a *Auth) AdminDeleteUser(_ context.Context, id string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.FailDelete != nil {
		return a.FailDelete
	}
	for email, acc := range a.accounts {
		if acc.user.ID == id {
			delete(a.accounts, email)
			a.Deleted = append(a.Deleted, id)
			return nil
		}
	}
	return &baas.AuthError{Status: http.StatusNotFound, Message: "User not found"}
}

// Bucket is an in-memory object store.
type Bucket struct {
	mu      sync.Mutex
	name    string
	objects map[string]storedObject
	Now     func() time.Time

	FailUpload error
	FailDelete error
}

type storedObject struct {
	data        []byte
	contentType string
	modified    time.Time
}

func NewBucket(name string) *Bucket {
	return &Bucket{name: name, objects: map[string]storedObject{}, Now: time.Now}
}

func (b *Bucket) Upload(_ context.Context, key string, body io.Reader, contentType string) error {
	if b.FailUpload != nil {
		return b.FailUpload
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.objects[key] = storedObject{data: data, contentType: contentType, modified: b.Now()}
	return nil
}

// Put stores an object with an explicit modification time.
func (b *Bucket) Put(key string, modified time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.objects[key] = storedObject{modified: modified}
}

func (b *Bucket) Delete(_ context.Context, key string) error {
	if b.FailDelete != nil {
		return b.FailDelete
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.objects, key)
	return nil
}

func (b *Bucket) List(_ context.Context, prefix string) ([]baas.Object, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []baas.Object
	for k, o := range b.objects {
		if strings.HasPrefix(k, prefix) {
			out = append(out, baas.Object{Key: k, Size: int64(len(o.data)), LastModified: o.modified})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func (b *Bucket) PublicURL(key string) string {
	return fmt.Sprintf("https://storage.test/%s/%s", b.name, key)
}

func (b *Bucket) Has(key string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.objects[key]
	return ok
}

// ContentType returns the stored content type of key.
func (b *Bucket) ContentType(key string) string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.objects[key].contentType
}

func (b *Bucket) Keys() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	keys := make([]string, 0, len(b.objects))
	for k := range b.objects {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

var (
	_ baas.Auth    = (*Auth)(nil)
	_ baas.Storage = (*Bucket)(nil)
	_ baas.Storage = (*baas.Bucket)(nil)
	_ baas.Auth    = (*baas.AuthClient)(nil)
)
