package auth

import (
	"fmt"
	"net/smtp"
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/go-redis/redis/v7"
	"github.com/johnsto/go-passwordless"
	"go.uber.org/zap"
)

// ContextKey is the type for values this package stores in a request context
type ContextKey string

// Context is the key under which the verified Claims of a request are stored
const Context ContextKey = "subtrack.authContext"

// Environment selects how login tokens reach the user
type Environment string

// Tokens go out over SMTP in production and into the log during development
const (
	EnvDevelopment Environment = "Dev"
	EnvProduction  Environment = "Prod"
)

const (
	transportLog   = "Log"
	transportEmail = "Email"
)

// Auth implements passwordless email login with JWT sessions. Login tokens
// live in Redis until verified or expired.
type Auth struct {
	Options
	pw     *passwordless.Passwordless
	jwtKey []byte
}

// Claims is the payload of a session token
type Claims struct {
	jwt.StandardClaims
	Email string `json:"email"`
	ID    string `json:"id"`
}

// SMTPOption carries the mail server settings used for token delivery
type SMTPOption struct {
	Auth     smtp.Auth
	From     string
	Hostname string // host:port of the SMTP server
}

// EmailOption controls how the login email reads
type EmailOption struct {
	Name          string // site name shown in the subject line
	LinkGenerator LinkGenerator
}

// LinkGenerator builds the login link embedded in the email
type LinkGenerator func(uid, token string) string

// Options provides initialization parameters for Auth
type Options struct {
	Redis  redis.UniversalClient
	Logger *zap.Logger

	JWTSigningKey string

	Environment Environment
	SMTP        SMTPOption
	EmailOption EmailOption
}

func (o *Options) validate() error {
	if o == nil {
		return fmt.Errorf("nil option is invalid")
	}
	if o.Redis == nil {
		return fmt.Errorf("nil Redis is invalid")
	}
	if o.Logger == nil {
		return fmt.Errorf("nil Logger is invalid")
	}
	if len(o.JWTSigningKey) < 16 {
		return fmt.Errorf("jwt signing key must be at least 16 characters")
	}
	if o.Environment == "" {
		o.Environment = EnvDevelopment
	}
	if o.SMTP.Auth == nil {
		return fmt.Errorf("nil SMTP.Auth is invalid")
	}
	if o.SMTP.From == "" {
		return fmt.Errorf("empty SMTP.From is invalid")
	}
	if o.SMTP.Hostname == "" {
		return fmt.Errorf("empty SMTP.Hostname is invalid")
	}
	if o.EmailOption.Name == "" {
		return fmt.Errorf("empty EmailOption.Name is invalid")
	}
	if o.EmailOption.LinkGenerator == nil {
		return fmt.Errorf("nil EmailOption.LinkGenerator is invalid")
	}

	return nil
}

// New will return a new instance of Auth for authentication
func New(option Options) (*Auth, error) {
	if err := option.validate(); err != nil {
		return nil, err
	}

	pw := passwordless.New(passwordless.NewRedisStore(option.Redis))
	pw.SetTransport(transportLog, passwordless.LogTransport{
		MessageFunc: func(token, uid string) string {
			return option.EmailOption.LinkGenerator(uid, token)
		},
	}, passwordless.NewCrockfordGenerator(8), time.Minute*30)
	pw.SetTransport(transportEmail, passwordless.NewSMTPTransport(
		option.SMTP.Hostname,
		option.SMTP.From,
		option.SMTP.Auth,
		loginEmailComposer(option.EmailOption),
	), passwordless.NewCrockfordGenerator(32), time.Minute*15)

	return &Auth{
		Options: option,
		pw:      pw,
		jwtKey:  []byte(option.JWTSigningKey),
	}, nil
}
