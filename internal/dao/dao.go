// Package dao gorm engine and server-side repositories
// Package dao gorm 引擎与服务端仓储实现
package dao

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/haierkeys/schedule-note-sync/internal/domain"
	"github.com/haierkeys/schedule-note-sync/pkg/fileurl"

	"github.com/glebarez/sqlite"
	"github.com/haierkeys/gormTracing"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
	"gorm.io/gorm/schema"
	"gorm.io/plugin/dbresolver"
)

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	// Type sqlite / mysql / postgres
	Type string
	// Path SQLite 数据库文件路径
	Path     string
	UserName string
	Password string
	// Host host:port
	Host    string
	Name    string
	Charset string
	// SSLMode postgres sslmode
	SSLMode string
	// Replicas read replica DSNs of the same type
	// Replicas 同类型只读副本 DSN
	Replicas        []string
	MaxIdleConns    int
	MaxOpenConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	// Debug 打印 SQL
	Debug bool
}

// NewDBEngineWithConfig opens a gorm engine for the configured dialect
// NewDBEngineWithConfig 按配置的数据库类型打开 gorm 引擎
func NewDBEngineWithConfig(c DatabaseConfig, zlog *zap.Logger) (*gorm.DB, error) {
	dialector, err := newDialector(c, "")
	if err != nil {
		return nil, err
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
		NamingStrategy: schema.NamingStrategy{
			SingularTable: true,
		},
	})
	if err != nil {
		return nil, errors.Wrapf(err, "open %s database", c.Type)
	}
	if c.Debug {
		db.Config.Logger = logger.Default.LogMode(logger.Info)
	}

	if len(c.Replicas) > 0 {
		replicas := make([]gorm.Dialector, 0, len(c.Replicas))
		for _, dsn := range c.Replicas {
			r, err := newDialector(c, dsn)
			if err != nil {
				return nil, err
			}
			replicas = append(replicas, r)
		}
		if err := db.Use(dbresolver.Register(dbresolver.Config{
			Replicas: replicas,
			Policy:   dbresolver.RandomPolicy{},
		})); err != nil {
			return nil, errors.Wrap(err, "register read replicas")
		}
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, errors.Wrap(err, "get sql.DB")
	}
	maxOpen := c.MaxOpenConns
	if c.Type == "" || c.Type == "sqlite" {
		// SQLite 单写者，串行化连接
		maxOpen = 1
	}
	if c.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(c.MaxIdleConns)
	}
	if maxOpen > 0 {
		sqlDB.SetMaxOpenConns(maxOpen)
	}
	if c.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(c.ConnMaxLifetime)
	}
	if c.ConnMaxIdleTime > 0 {
		sqlDB.SetConnMaxIdleTime(c.ConnMaxIdleTime)
	}

	if err := db.Use(&gormTracing.OpentracingPlugin{}); err != nil && zlog != nil {
		zlog.Warn("gorm tracing plugin not registered", zap.Error(err))
	}

	return db, nil
}

func newDialector(c DatabaseConfig, dsn string) (gorm.Dialector, error) {
	switch c.Type {
	case "", "sqlite":
		path := dsn
		if path == "" {
			path = c.Path
		}
		if path == ":memory:" {
			return sqlite.Open(path), nil
		}
		if !fileurl.IsExist(path) {
			if err := fileurl.CreatePath(path, os.ModePerm); err != nil {
				return nil, errors.Wrap(err, "create sqlite dir")
			}
		}
		return sqlite.Open(path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"), nil
	case "mysql":
		if dsn == "" {
			charset := c.Charset
			if charset == "" {
				charset = "utf8mb4"
			}
			dsn = fmt.Sprintf("%s:%s@tcp(%s)/%s?charset=%s&parseTime=true&loc=Local",
				c.UserName, c.Password, c.Host, c.Name, charset)
		}
		return mysql.Open(dsn), nil
	case "postgres", "postgresql":
		if dsn == "" {
			host, port := c.Host, "5432"
			if i := strings.LastIndex(c.Host, ":"); i > 0 {
				host, port = c.Host[:i], c.Host[i+1:]
			}
			sslMode := c.SSLMode
			if sslMode == "" {
				sslMode = "disable"
			}
			dsn = fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
				host, port, c.UserName, c.Password, c.Name, sslMode)
		}
		return postgres.Open(dsn), nil
	}
	return nil, errors.Errorf("unsupported database type %q", c.Type)
}

type txKey struct{}

// Dao wraps the gorm engine and carries transactions through context
// Dao 封装 gorm 引擎，并通过 context 传递事务
type Dao struct {
	db     *gorm.DB
	logger *zap.Logger
}

var _ domain.Transactor = (*Dao)(nil)

func New(db *gorm.DB, logger *zap.Logger) *Dao {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dao{db: db, logger: logger}
}

// DB returns the transaction in ctx, or the engine bound to ctx
// DB 返回 ctx 中的事务，否则返回绑定 ctx 的引擎
func (d *Dao) DB(ctx context.Context) *gorm.DB {
	if tx, ok := ctx.Value(txKey{}).(*gorm.DB); ok {
		return tx
	}
	return d.db.WithContext(ctx)
}

// Engine 返回底层 gorm 引擎
func (d *Dao) Engine() *gorm.DB {
	return d.db
}

// Transaction runs fn in a transaction; nested calls join the outer one
// Transaction 在事务中执行 fn，嵌套调用加入外层事务
func (d *Dao) Transaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(txKey{}).(*gorm.DB); ok {
		return fn(ctx)
	}
	return d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(context.WithValue(ctx, txKey{}, tx))
	})
}

// Close 关闭数据库连接
func (d *Dao) Close() error {
	sqlDB, err := d.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// IsDuplicateKey reports a unique constraint violation
// IsDuplicateKey 判断是否为唯一约束冲突
func IsDuplicateKey(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint") || strings.Contains(msg, "duplicate")
}

// createOnce inserts m unless a unique key already holds the row; taken reports that case.
// The statement never fails on the duplicate, so an enclosing postgres transaction stays usable.
// createOnce 插入 m，唯一键已被占用时不报错而返回 taken=true，外层 postgres 事务因此不会被中止
func createOnce(db *gorm.DB, m any) (taken bool, err error) {
	res := db.Clauses(clause.OnConflict{DoNothing: true}).Create(m)
	if res.Error != nil {
		if IsDuplicateKey(res.Error) {
			return true, nil
		}
		return false, res.Error
	}
	return res.RowsAffected == 0, nil
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.ErrNotFound
	}
	return err
}

func ms(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func fromMs(v int64) time.Time {
	if v == 0 {
		return time.Time{}
	}
	return time.UnixMilli(v).UTC()
}
