package scenarios

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/entrhq/uiharness/pkg/dataset"
	"github.com/entrhq/uiharness/pkg/pages"
	"github.com/entrhq/uiharness/pkg/runner"
	"github.com/entrhq/uiharness/pkg/session"
)

// Expected result values in data-driven scenarios.
const (
	ResultSuccess = "success"
	ResultFailure = "failure"
)

// Messages looks up expected UI messages by key. *dataset.FileSource
// implements it.
type Messages interface {
	ExpectedMessage(key string) string
}

// Pages are the page objects scenarios drive.
type Pages struct {
	Login *pages.LoginPage
	Home  *pages.HomePage
}

// Login returns the built-in login and home scenarios.
func Login(p Pages, msgs Messages) []runner.Scenario {
	return []runner.Scenario{
		{
			Name:  "login/valid_user",
			Fresh: true,
			Run: func(ctx context.Context, env *runner.Env) error {
				if !env.Session.Authenticated() {
					return fmt.Errorf("session is not authenticated")
				}
				return p.Home.Loaded(ctx, env.Handle())
			},
		},
		{
			Name: "login/session_reuse",
			Run: func(ctx context.Context, env *runner.Env) error {
				before := env.Manager.Establishments()
				cred := env.Session.Credential()

				again, err := env.Manager.Acquire(ctx, cred, env.MaxAge)
				if err != nil {
					return fmt.Errorf("second acquire failed: %w", err)
				}
				if again != env.Session {
					return fmt.Errorf("expected the same session to be reused")
				}
				if after := env.Manager.Establishments(); after != before {
					return fmt.Errorf("expected no new login, establishments went from %d to %d", before, after)
				}

				if err := p.Home.Open(ctx, again.Handle); err != nil {
					return err
				}
				return p.Home.Loaded(ctx, again.Handle)
			},
		},
		{
			Name:      "login/invalid_user",
			NoSession: true,
			Run: func(ctx context.Context, env *runner.Env) error {
				cred, err := env.Credential(dataset.InvalidUser)
				if err != nil {
					return err
				}
				return expectRejection(ctx, env, p.Login, cred, msgs.ExpectedMessage(dataset.MsgInvalidCredentials))
			},
		},
		{
			Name:      "login/empty_password",
			NoSession: true,
			Run: func(ctx context.Context, env *runner.Env) error {
				cred, err := env.Credential(dataset.ValidUser)
				if err != nil {
					return err
				}
				cred.Password = ""
				return expectRejection(ctx, env, p.Login, cred, msgs.ExpectedMessage(dataset.MsgEmptyPassword))
			},
		},
		{
			Name:      "login/invalid_otp",
			NoSession: true,
			Run: func(ctx context.Context, env *runner.Env) error {
				if p.Login.OTP == nil {
					return fmt.Errorf("%w: no verification step configured", runner.ErrSkip)
				}
				cred, err := env.Credential(dataset.ValidUser)
				if err != nil {
					return err
				}
				return expectOTPRejection(ctx, env, p.Login, cred, msgs.ExpectedMessage(dataset.MsgInvalidOTP))
			},
		},
		{
			Name: "home/landing_visible",
			Run: func(ctx context.Context, env *runner.Env) error {
				if err := p.Home.Open(ctx, env.Handle()); err != nil {
					return err
				}
				if err := p.Home.Loaded(ctx, env.Handle()); err != nil {
					return err
				}
				onLogin, err := p.Login.OnLoginPage(ctx, env.Handle())
				if err != nil {
					return err
				}
				if onLogin {
					return fmt.Errorf("authenticated session was sent back to the login page")
				}
				return nil
			},
		},
	}
}

// FromData turns data-driven login cases into scenarios named
// "login/data/<kind>/<test_name>". Each runs on an anonymous handle.
func FromData(p Pages, kind string, cases []dataset.Scenario) []runner.Scenario {
	out := make([]runner.Scenario, 0, len(cases))
	for _, c := range cases {
		c := c
		out = append(out, runner.Scenario{
			Name:      fmt.Sprintf("login/data/%s/%s", kind, c.Name),
			NoSession: true,
			Run: func(ctx context.Context, env *runner.Env) error {
				switch c.ExpectedResult {
				case ResultSuccess:
					return expectLogin(ctx, env, p.Login, c.Credential())
				case ResultFailure:
					return expectRejection(ctx, env, p.Login, c.Credential(), "")
				default:
					return fmt.Errorf("unknown expected_result %q", c.ExpectedResult)
				}
			},
		})
	}
	return out
}

func expectLogin(ctx context.Context, env *runner.Env, login *pages.LoginPage, cred session.Credential) error {
	h, err := env.Anonymous(ctx)
	if err != nil {
		return err
	}
	if err := login.Submit(ctx, h, cred); err != nil {
		return err
	}
	if err := login.AwaitMarker(ctx, h); err != nil {
		return fmt.Errorf("expected login to succeed: %w", err)
	}
	return nil
}

// expectOTPRejection signs in with cred but answers the verification step
// with a wrong code, and requires the code to be refused.
func expectOTPRejection(ctx context.Context, env *runner.Env, login *pages.LoginPage, cred session.Credential, want string) error {
	h, err := env.Anonymous(ctx)
	if err != nil {
		return err
	}

	wrong := *login
	wrong.OTPCode = otherCode(login.OTPCode)
	if err := wrong.Submit(ctx, h, cred); err != nil {
		return err
	}

	err = wrong.AwaitMarker(ctx, h)
	if err == nil {
		return fmt.Errorf("expected verification code %s to be refused, but login succeeded", wrong.OTPCode)
	}
	var rejection *session.Rejection
	if !errors.As(err, &rejection) {
		return fmt.Errorf("expected an error message on the verification page: %w", err)
	}
	if want != "" && !strings.Contains(strings.ToLower(rejection.Message), strings.ToLower(want)) {
		return fmt.Errorf("expected error message %q, got %q", want, rejection.Message)
	}
	return nil
}

// otherCode returns a code of the same length that differs from code.
func otherCode(code string) string {
	wrong := strings.Repeat("0", len(code))
	if wrong == code {
		wrong = strings.Repeat("1", len(code))
	}
	return wrong
}

// expectRejection submits cred and requires the page to show an error. When
// want is set the error text must contain it, ignoring case.
func expectRejection(ctx context.Context, env *runner.Env, login *pages.LoginPage, cred session.Credential, want string) error {
	h, err := env.Anonymous(ctx)
	if err != nil {
		return err
	}
	if err := login.Submit(ctx, h, cred); err != nil {
		return err
	}

	err = login.AwaitMarker(ctx, h)
	if err == nil {
		return fmt.Errorf("expected login as %s to be rejected, but it succeeded", cred)
	}

	var rejection *session.Rejection
	if !errors.As(err, &rejection) {
		return fmt.Errorf("expected an error message on the login page: %w", err)
	}
	if want != "" && !strings.Contains(strings.ToLower(rejection.Message), strings.ToLower(want)) {
		return fmt.Errorf("expected error message %q, got %q", want, rejection.Message)
	}

	onLogin, err := login.OnLoginPage(ctx, h)
	if err != nil {
		return err
	}
	if !onLogin {
		return fmt.Errorf("expected to stay on the login page, now at %s", h.URL())
	}
	return nil
}
