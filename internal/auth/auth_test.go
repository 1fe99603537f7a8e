package auth

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"adminexport/internal/config"
	apperrors "adminexport/internal/errors"
	"adminexport/internal/shared/testutil"
)

const (
	loginURL = "https://silkroad21.co.kr/pzadm/Login.asp"
	homeURL  = "https://silkroad21.co.kr/pzadm/main.asp"
	listURL  = "https://silkroad21.co.kr/Admin/Acting/Acting_S.asp?gMnu1=101"
)

// fakeDriver simulates the login page
type fakeDriver struct {
	mu sync.Mutex

	url           string
	title         string
	fieldsMissing bool
	alerts        []string
	values        map[string]string
	navigations   []string
	enters        int
	submits       int
	clicks        int

	onEnter    func(f *fakeDriver)
	onSubmit   func(f *fakeDriver)
	onClick    func(f *fakeDriver)
	onNavigate func(f *fakeDriver, url string)
}

func newFakeDriver() *fakeDriver {
	return &fakeDriver{title: "관리자 로그인", values: map[string]string{}}
}

func (f *fakeDriver) Navigate(_ context.Context, url string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.navigations = append(f.navigations, url)
	f.url = url
	if f.onNavigate != nil {
		f.onNavigate(f, url)
	}
	return nil
}

func (f *fakeDriver) Location(context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.url, nil
}

func (f *fakeDriver) Title(context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.title, nil
}

func (f *fakeDriver) WaitPresent(ctx context.Context, _ string) error {
	f.mu.Lock()
	missing := f.fieldsMissing
	f.mu.Unlock()
	if missing {
		<-ctx.Done()
		return ctx.Err()
	}
	return nil
}

func (f *fakeDriver) SetValue(_ context.Context, sel, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.values[sel] = value
	return nil
}

func (f *fakeDriver) PressEnter(context.Context, string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.enters++
	if f.onEnter != nil {
		f.onEnter(f)
	}
	return nil
}

func (f *fakeDriver) Submit(context.Context, string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submits++
	if f.onSubmit != nil {
		f.onSubmit(f)
	}
	return nil
}

func (f *fakeDriver) Click(context.Context, string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.clicks++
	if f.onClick != nil {
		f.onClick(f)
		return nil
	}
	return errors.New("no node")
}

func (f *fakeDriver) DrainAlert(context.Context, time.Duration) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.alerts) == 0 {
		return "", false
	}
	msg := f.alerts[0]
	f.alerts = f.alerts[1:]
	return msg, true
}

func goHome(f *fakeDriver) { f.url = homeURL }

func testLoginConfig() config.LoginConfig {
	cfg := config.Default().Login
	cfg.URL = loginURL
	cfg.ID = "operator"
	cfg.Password = "secret"
	cfg.FieldTimeout = 50 * time.Millisecond
	cfg.NavigationTimeout = 60 * time.Millisecond
	cfg.SettleDelay = 0
	cfg.AlertWait = 0
	return cfg
}

func newTestEstablisher(t *testing.T, d *fakeDriver) (*Establisher, *testutil.BufferedSlogHandler) {
	logger, handler := testutil.NewTestLogger(t)
	e := NewEstablisher(d, testLoginConfig(), logger)
	e.pollInterval = 5 * time.Millisecond
	return e, handler
}

func TestLogin(t *testing.T) {
	tests := []struct {
		name        string
		setup       func(f *fakeDriver)
		wantEnters  int
		wantSubmits int
		wantClicks  int
		wantErr     bool
	}{
		{
			name:       "enter leaves login page",
			setup:      func(f *fakeDriver) { f.onEnter = goHome },
			wantEnters: 1,
		},
		{
			name: "alert then retry succeeds",
			setup: func(f *fakeDriver) {
				f.onEnter = func(f *fakeDriver) {
					if f.enters == 1 {
						f.alerts = append(f.alerts, "아이디 또는 비밀번호를 확인하세요")
						return
					}
					f.url = homeURL
				}
			},
			wantEnters: 2,
		},
		{
			name:        "direct form submit",
			setup:       func(f *fakeDriver) { f.onSubmit = goHome },
			wantEnters:  1,
			wantSubmits: 1,
		},
		{
			name:        "submit control click",
			setup:       func(f *fakeDriver) { f.onClick = goHome },
			wantEnters:  1,
			wantSubmits: 1,
			wantClicks:  1,
		},
		{
			name:        "never leaves login page",
			setup:       func(*fakeDriver) {},
			wantEnters:  1,
			wantSubmits: 1,
			wantClicks:  1,
			wantErr:     true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := newFakeDriver()
			tt.setup(d)
			e, _ := newTestEstablisher(t, d)

			session, err := e.Login(context.Background())

			assert.Equal(t, tt.wantEnters, d.enters)
			assert.Equal(t, tt.wantSubmits, d.submits)
			assert.Equal(t, tt.wantClicks, d.clicks)
			assert.Equal(t, "operator", d.values[`[name="sMemId"]`])
			assert.Equal(t, "secret", d.values[`[name="sMemPw"]`])

			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, apperrors.IsType(err, apperrors.ErrTypeAuth))
				var appErr *apperrors.AppError
				require.ErrorAs(t, err, &appErr)
				assert.Equal(t, loginURL, appErr.Context["url"])
				assert.Equal(t, "관리자 로그인", appErr.Context["title"])
				assert.Nil(t, e.Session())
				return
			}
			require.NoError(t, err)
			assert.Equal(t, homeURL, session.URL)
			assert.Same(t, session, e.Session())
		})
	}
}

func TestLogin_FieldsMissing(t *testing.T) {
	d := newFakeDriver()
	d.fieldsMissing = true
	e, handler := newTestEstablisher(t, d)

	_, err := e.Login(context.Background())

	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.ErrTypeAuth))
	assert.Zero(t, d.enters)
	testutil.AssertLogContains(t, handler, "Login failed")
}

func TestEnsureSession(t *testing.T) {
	t.Run("valid session navigates once", func(t *testing.T) {
		d := newFakeDriver()
		e, _ := newTestEstablisher(t, d)

		require.NoError(t, e.EnsureSession(context.Background(), listURL))
		assert.Equal(t, []string{listURL}, d.navigations)
		assert.Zero(t, d.enters)
	})

	t.Run("expired session logs in again", func(t *testing.T) {
		d := newFakeDriver()
		loggedIn := false
		d.onEnter = func(f *fakeDriver) {
			loggedIn = true
			f.url = homeURL
		}
		d.onNavigate = func(f *fakeDriver, url string) {
			if url == listURL && !loggedIn {
				f.url = loginURL + "?ret=list"
			}
		}
		e, handler := newTestEstablisher(t, d)

		require.NoError(t, e.EnsureSession(context.Background(), listURL))
		assert.Equal(t, []string{listURL, loginURL, listURL}, d.navigations)
		assert.Equal(t, 1, d.enters)
		assert.Equal(t, listURL, e.Session().URL)
		testutil.AssertLogContains(t, handler, "Session expired")
	})

	t.Run("still redirected after login", func(t *testing.T) {
		d := newFakeDriver()
		d.onEnter = goHome
		d.onNavigate = func(f *fakeDriver, url string) {
			if url == listURL {
				f.url = loginURL
			}
		}
		e, _ := newTestEstablisher(t, d)

		err := e.EnsureSession(context.Background(), listURL)
		require.Error(t, err)
		assert.True(t, apperrors.IsType(err, apperrors.ErrTypeAuth))
	})
}
