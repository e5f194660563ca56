package database

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"blogCPT/internal/config"
)

type MethodsDB interface {
	CloseDB() error
	RunMigrations(migrationFilePath string) error
	HealthCheck() error
}

type DB struct {
	*sqlx.DB
	log logrus.FieldLogger
}

func DSN(cfg config.DB) string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		cfg.DbHOST,
		cfg.DbPORT,
		cfg.DbUSER,
		cfg.DbPASSWORD,
		cfg.DbNAME,
		cfg.DbSSLMODE,
	)
}

func ConnectDB(cfg config.DB, log logrus.FieldLogger) (*DB, error) {
	log.WithFields(logrus.Fields{"host": cfg.DbHOST, "dbname": cfg.DbNAME}).Info("connecting to postgres")

	db, err := sqlx.Connect("postgres", DSN(cfg))
	if err != nil {
		return nil, fmt.Errorf("не удалось подключиться к БД: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	dbStruct := &DB{DB: db, log: log}
	if err := dbStruct.HealthCheck(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ошибка при проверке подключения к БД: %w", err)
	}

	log.Info("connected to postgres")
	return dbStruct, nil
}

// NewDB wraps an existing handle, for tests.
func NewDB(db *sqlx.DB, log logrus.FieldLogger) *DB {
	return &DB{DB: db, log: log}
}

func (db *DB) CloseDB() error {
	return db.DB.Close()
}

func (db *DB) RunMigrations(migrationFilePath string) error {
	migrationSQL, err := os.ReadFile(migrationFilePath)
	if os.IsNotExist(err) {
		return fmt.Errorf("файл миграций не найден: %s", migrationFilePath)
	}
	if err != nil {
		return fmt.Errorf("ошибка при чтении файла миграций: %w", err)
	}

	db.log.WithField("file", migrationFilePath).Info("applying migrations")

	if _, err := db.Exec(string(migrationSQL)); err != nil {
		return fmt.Errorf("ошибка при выполнении миграций: %w", err)
	}

	db.log.Info("migrations applied")
	return nil
}

func (db *DB) HealthCheck() error {
	if db == nil || db.DB == nil {
		return fmt.Errorf("подключение к БД не инициализировано")
	}
	return db.Ping()
}

// Mongo is a connected MongoDB database handle.
type Mongo struct {
	Client   *mongo.Client
	Database *mongo.Database
}

func ConnectMongo(ctx context.Context, cfg config.Mongo, log logrus.FieldLogger) (*Mongo, error) {
	log.WithField("database", cfg.Database).Info("connecting to mongodb")

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, fmt.Errorf("не удалось подключиться к MongoDB: %w", err)
	}

	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("ошибка при проверке подключения к MongoDB: %w", err)
	}

	return &Mongo{Client: client, Database: client.Database(cfg.Database)}, nil
}

func (m *Mongo) Close(ctx context.Context) error {
	return m.Client.Disconnect(ctx)
}

func (m *Mongo) HealthCheck() error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return m.Client.Ping(ctx, readpref.Primary())
}
