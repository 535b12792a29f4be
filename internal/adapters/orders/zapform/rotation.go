package zapform

import (
	"context"
	"strings"
	"sync"

	perr "slaledger/internal/platform/errors"
	"slaledger/internal/platform/logger"
)

// DefaultRotateEvery is how many successful requests one login serves before handing over
const DefaultRotateEvery = 100

// Credential is one API login
type Credential struct {
	Username string
	Password string
}

// ParseCredentials reads "user:pass,user:pass"; entries without a colon are skipped
func ParseCredentials(csv string) []Credential {
	var out []Credential
	for part := range strings.SplitSeq(csv, ",") {
		part = strings.TrimSpace(part)
		user, pass, ok := strings.Cut(part, ":")
		if !ok || strings.TrimSpace(user) == "" {
			continue
		}
		out = append(out, Credential{Username: strings.TrimSpace(user), Password: pass})
	}
	return out
}

// LoginFunc exchanges a credential for an API token
type LoginFunc func(ctx context.Context, c Credential) (string, error)

// Rotation is the credential policy: one active login at a time, handed to
// the next after Every successes or on any failure reported through Fail
type Rotation struct {
	creds []Credential
	every int
	login LoginFunc
	log   *logger.Logger

	// OnRotate observes every handover
	OnRotate func(from, to string)

	mu        sync.Mutex
	idx       int
	token     string
	successes int
}

// NewRotation builds a policy over creds; every <= 0 uses DefaultRotateEvery
func NewRotation(creds []Credential, every int, login LoginFunc) *Rotation {
	if every <= 0 {
		every = DefaultRotateEvery
	}
	return &Rotation{
		creds: append([]Credential(nil), creds...),
		every: every,
		login: login,
		log:   logger.Named("zapform.rotation"),
	}
}

// Token returns the active token, logging in on first use. Without any
// credentials the token is empty and requests go unauthenticated
func (r *Rotation) Token(ctx context.Context) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.creds) == 0 || r.token != "" {
		return r.token, nil
	}
	return r.refresh(ctx)
}

// Success counts one successful request and rotates when the quota is reached
func (r *Rotation) Success(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.creds) == 0 {
		return
	}
	r.successes++
	if r.successes < r.every {
		return
	}
	r.log.Info().Int("every", r.every).Msg("login quota reached; rotating")
	r.advance(ctx)
}

// Fail rotates after a throttled, forbidden, transient or network failure.
// token is the one the failed request used; a stale report is ignored so
// concurrent failures rotate once
func (r *Rotation) Fail(ctx context.Context, token, reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.creds) == 0 || token != r.token {
		return
	}
	r.log.Warn().Str("reason", reason).Str("user", r.creds[r.idx].Username).Msg("rotating login after failure")
	r.advance(ctx)
}

// Current returns the active username
func (r *Rotation) Current() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.creds) == 0 {
		return ""
	}
	return r.creds[r.idx].Username
}

func (r *Rotation) advance(ctx context.Context) {
	from := r.creds[r.idx].Username
	r.idx = (r.idx + 1) % len(r.creds)
	r.token = ""
	if _, err := r.refresh(ctx); err != nil {
		r.log.Error().Err(err).Msg("no login available after rotation")
		return
	}
	if r.OnRotate != nil {
		r.OnRotate(from, r.creds[r.idx].Username)
	}
}

// refresh logs in starting at idx, trying every credential once. Caller holds mu
func (r *Rotation) refresh(ctx context.Context) (string, error) {
	for range r.creds {
		c := r.creds[r.idx]
		tok, err := r.login(ctx, c)
		if err == nil && tok != "" {
			r.token = tok
			r.successes = 0
			r.log.Info().Str("user", c.Username).Msg("login active")
			return tok, nil
		}
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		r.log.Warn().Err(err).Str("user", c.Username).Msg("login failed")
		r.idx = (r.idx + 1) % len(r.creds)
	}
	return "", perr.Unauthorizedf("no credential could log in (%d tried)", len(r.creds))
}
