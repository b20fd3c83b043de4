package container

import (
	"cloud.google.com/go/storage"
	"github.com/elastic/go-elasticsearch/v8"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/oksasatya/account-guard/config"
	"github.com/oksasatya/account-guard/internal/application"
	eslog "github.com/oksasatya/account-guard/internal/infrastructure/elasticsearch"
	"github.com/oksasatya/account-guard/pkg/helpers"
)

// app-level container to share constructed components across packages
// Router can auto-wire modules from these singletons.

var (
	cfg         *config.Config
	logger      *logrus.Logger
	pgPool      *pgxpool.Pool
	redisClient *redis.Client
	gcsClient   *storage.Client
	esClient    *elasticsearch.Client

	jwtManager *helpers.JWTManager

	accountService *application.AccountService
	sessionService *application.SessionService
	authGuard      *application.AuthGuard
	lockoutLog     *eslog.LockoutLog
)

func SetConfig(c *config.Config)    { cfg = c }
func GetConfig() *config.Config     { return cfg }
func SetLogger(l *logrus.Logger)    { logger = l }
func GetLogger() *logrus.Logger     { return logger }
func SetPGPool(p *pgxpool.Pool)     { pgPool = p }
func GetPGPool() *pgxpool.Pool      { return pgPool }
func SetRedis(r *redis.Client)      { redisClient = r }
func GetRedis() *redis.Client       { return redisClient }
func SetGCS(s *storage.Client)      { gcsClient = s }
func GetGCS() *storage.Client       { return gcsClient }
func SetES(c *elasticsearch.Client) { esClient = c }
func GetES() *elasticsearch.Client  { return esClient }
func SetJWT(m *helpers.JWTManager)  { jwtManager = m }
func GetJWT() *helpers.JWTManager   { return jwtManager }

func SetAccountService(s *application.AccountService) { accountService = s }
func GetAccountService() *application.AccountService  { return accountService }
func SetSessionService(s *application.SessionService) { sessionService = s }
func GetSessionService() *application.SessionService  { return sessionService }
func SetAuthGuard(g *application.AuthGuard)           { authGuard = g }
func GetAuthGuard() *application.AuthGuard            { return authGuard }
func SetLockoutLog(l *eslog.LockoutLog)               { lockoutLog = l }
func GetLockoutLog() *eslog.LockoutLog                { return lockoutLog }
