package infra

import (
	"context"
	"embed"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"governance-gateway/logging"
	"governance-gateway/security/domain"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// Connect abre o pool GORM sobre Postgres e valida com um ping.
func Connect(ctx context.Context, databaseURL string, maxConns int, log *slog.Logger) (*gorm.DB, error) {
	log = logging.Component(log, "postgres", "infra")
	log.InfoContext(ctx, "postgres connect started", "operation", "connect", "outcome", "start")

	db, err := gorm.Open(postgres.Open(databaseURL), &gorm.Config{
		PrepareStmt:    true,
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("gorm sql db: %w", err)
	}
	if maxConns > 0 {
		sqlDB.SetMaxOpenConns(maxConns)
		sqlDB.SetMaxIdleConns(maxConns / 2)
	}
	sqlDB.SetConnMaxIdleTime(15 * time.Minute)
	sqlDB.SetConnMaxLifetime(time.Hour)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := sqlDB.PingContext(pingCtx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	log.InfoContext(ctx, "postgres connect completed", "operation", "connect", "outcome", "success")
	return db, nil
}

// RunMigrations aplica as migrações embutidas em ordem lexical.
func RunMigrations(ctx context.Context, db *gorm.DB, log *slog.Logger) error {
	log = logging.Component(log, "postgres", "infra")
	entries, err := migrationFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("read migrations dir: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".sql") {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	for _, name := range names {
		raw, err := migrationFS.ReadFile("migrations/" + name)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", name, err)
		}
		if err := db.WithContext(ctx).Exec(string(raw)).Error; err != nil {
			return fmt.Errorf("exec migration %s: %w", name, err)
		}
		log.InfoContext(ctx, "migration applied",
			"operation", "apply_migration",
			"outcome", "success",
			"migration", name,
		)
	}
	return nil
}

// PostgresStore persiste auditorias (audit_logs) e alertas (security_alerts).
type PostgresStore struct {
	db *gorm.DB
}

func NewPostgresStore(db *gorm.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

var (
	_ domain.AuditStore = (*PostgresStore)(nil)
	_ domain.AlertStore = (*PostgresStore)(nil)
)

func (s *PostgresStore) InsertAuditLog(ctx context.Context, entry domain.AuditLogEntry) error {
	row, err := toAuditModel(entry)
	if err != nil {
		return err
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("insert audit log: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListAuditLogsSince(ctx context.Context, since time.Time) ([]domain.AuditLogEntry, error) {
	var rows []auditLogModel
	if err := s.db.WithContext(ctx).
		Where("created_at > ?", since.UTC()).
		Order("created_at DESC").
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list audit logs: %w", err)
	}
	out := make([]domain.AuditLogEntry, 0, len(rows))
	for _, r := range rows {
		out = append(out, toDomainAudit(r))
	}
	return out, nil
}

// InsertAlerts grava o lote inteiro numa única instrução.
func (s *PostgresStore) InsertAlerts(ctx context.Context, alerts []domain.SecurityAlert) error {
	if len(alerts) == 0 {
		return nil
	}
	rows := make([]securityAlertModel, 0, len(alerts))
	for _, a := range alerts {
		row, err := toAlertModel(a)
		if err != nil {
			return err
		}
		rows = append(rows, row)
	}
	if err := s.db.WithContext(ctx).Create(&rows).Error; err != nil {
		return fmt.Errorf("insert security alerts: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListAlertsSince(ctx context.Context, since time.Time) ([]domain.SecurityAlert, error) {
	var rows []securityAlertModel
	if err := s.db.WithContext(ctx).
		Where("created_at > ?", since.UTC()).
		Order("created_at DESC").
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list security alerts: %w", err)
	}
	out := make([]domain.SecurityAlert, 0, len(rows))
	for _, r := range rows {
		out = append(out, toDomainAlert(r))
	}
	return out, nil
}
