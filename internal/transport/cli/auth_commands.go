package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	domainauth "chemviz-client-go/internal/domain/auth"
)

func (a *App) register(ctx context.Context, args []string) error {
	var req domainauth.RegisterRequest
	var password string
	fs := a.flagSet("register")
	fs.StringVar(&req.Username, "username", "", "account username")
	fs.StringVar(&req.Email, "email", "", "account email")
	fs.StringVar(&req.FirstName, "first-name", "", "first name")
	fs.StringVar(&req.LastName, "last-name", "", "last name")
	fs.StringVar(&password, "password", "", "password (read from stdin when omitted)")
	if err := parse(fs, args); err != nil {
		return err
	}
	if req.Username == "" {
		return fmt.Errorf("%w: register needs --username", ErrUsage)
	}
	secret, err := a.readSecret(password, "password: ")
	if err != nil {
		return err
	}
	req.Password = secret

	resp, err := a.deps.Auth.Register(ctx, req)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.deps.Stdout, "registered and logged in as %s\n", resp.User.Username)
	return nil
}

func (a *App) login(ctx context.Context, args []string) error {
	var req domainauth.LoginRequest
	var password string
	fs := a.flagSet("login")
	fs.StringVar(&req.Username, "username", "", "account username")
	fs.StringVar(&req.Email, "email", "", "account email, used when --username is empty")
	fs.StringVar(&password, "password", "", "password (read from stdin when omitted)")
	if err := parse(fs, args); err != nil {
		return err
	}
	if req.Username == "" && req.Email == "" {
		return fmt.Errorf("%w: login needs --username or --email", ErrUsage)
	}
	secret, err := a.readSecret(password, "password: ")
	if err != nil {
		return err
	}
	req.Password = secret

	resp, err := a.deps.Auth.Login(ctx, req)
	if err != nil {
		if domainauth.IsInvalidCredentials(err) {
			return fmt.Errorf("invalid credentials")
		}
		return err
	}
	fmt.Fprintf(a.deps.Stdout, "logged in as %s\n", resp.User.Username)
	return nil
}

func (a *App) logout(ctx context.Context, args []string) error {
	if err := parse(a.flagSet("logout"), args); err != nil {
		return err
	}
	if err := a.deps.Auth.Logout(ctx); err != nil {
		return err
	}
	fmt.Fprintln(a.deps.Stdout, "logged out")
	return nil
}

func (a *App) profile(ctx context.Context, args []string) error {
	if err := parse(a.flagSet("profile"), args); err != nil {
		return err
	}
	user, err := a.deps.Auth.CheckAuth(ctx)
	if err != nil {
		return err
	}
	if user == nil {
		return fmt.Errorf("not logged in")
	}

	tw := newTable(a.deps.Stdout)
	fmt.Fprintf(tw, "id\t%d\n", user.ID)
	fmt.Fprintf(tw, "username\t%s\n", user.Username)
	fmt.Fprintf(tw, "email\t%s\n", user.Email)
	if name := strings.TrimSpace(user.FirstName + " " + user.LastName); name != "" {
		fmt.Fprintf(tw, "name\t%s\n", name)
	}
	return tw.Flush()
}

func (a *App) status(ctx context.Context, args []string) error {
	if err := parse(a.flagSet("status"), args); err != nil {
		return err
	}
	st, err := a.deps.Auth.Status(ctx)
	if err != nil {
		return err
	}
	stats, err := a.deps.Auth.Stats(ctx)
	if err != nil {
		return err
	}

	tw := newTable(a.deps.Stdout)
	fmt.Fprintf(tw, "store\t%v (%v)\n", stats["type"], stats["namespace"])
	if !st.Authenticated {
		fmt.Fprintln(tw, "session\tnot logged in")
		return tw.Flush()
	}
	fmt.Fprintln(tw, "session\tlogged in")
	if st.Username != "" {
		fmt.Fprintf(tw, "user\t%s (id %s)\n", st.Username, st.Subject)
	}
	if !st.ExpiresAt.IsZero() {
		state := "valid"
		if st.Expired {
			state = "expired, refreshed on next request"
		}
		fmt.Fprintf(tw, "access token\t%s until %s\n", state, st.ExpiresAt.Local().Format(time.RFC3339))
	}
	refresh := "absent"
	if st.HasRefresh {
		refresh = "present"
	}
	fmt.Fprintf(tw, "refresh token\t%s\n", refresh)
	if !st.UpdatedAt.IsZero() {
		fmt.Fprintf(tw, "updated\t%s\n", st.UpdatedAt.Local().Format(time.RFC3339))
	}
	return tw.Flush()
}
