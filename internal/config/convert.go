package config

import "github.com/danmuck/rpcgate/internal/session"

// SessionUsers converts validated user entries. Empty grant components
// match everything.
func SessionUsers(cfg UsersConfig) ([]*session.User, error) {
	users := make([]*session.User, 0, len(cfg.Users))
	for _, entry := range cfg.Users {
		grants := make([]session.Grant, 0, len(entry.Grants))
		for _, g := range entry.Grants {
			level, err := session.ParseLevel(g.Permission)
			if err != nil {
				return nil, err
			}
			grants = append(grants, session.Grant{
				Scope:  orWildcard(g.Scope),
				Object: orWildcard(g.Object),
				Method: orWildcard(g.Method),
				Level:  level,
			})
		}
		users = append(users, &session.User{
			Username:     entry.Username,
			PasswordHash: entry.PasswordHash,
			Grants:       grants,
		})
	}
	return users, nil
}

func orWildcard(s string) string {
	if s == "" {
		return "*"
	}
	return s
}
