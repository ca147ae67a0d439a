// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

//go:build integration

package store_test

import (
	"context"
	"time"

	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/holomush/holoauth/internal/store"
)

var _ = Describe("Migrator", Ordered, func() {
	var (
		ctx       context.Context
		container *postgres.PostgresContainer
		connStr   string
		migrator  *store.Migrator
	)

	BeforeAll(func() {
		ctx = context.Background()
		var err error
		container, err = postgres.Run(ctx,
			"postgres:16-alpine",
			postgres.WithDatabase("holoauth_test"),
			postgres.WithUsername("holoauth"),
			postgres.WithPassword("holoauth"),
			testcontainers.WithWaitStrategy(
				wait.ForLog("database system is ready to accept connections").
					WithOccurrence(2).
					WithStartupTimeout(30*time.Second),
			),
		)
		Expect(err).NotTo(HaveOccurred())

		connStr, err = container.ConnectionString(ctx, "sslmode=disable")
		Expect(err).NotTo(HaveOccurred())

		migrator, err = store.NewMigrator(connStr)
		Expect(err).NotTo(HaveOccurred())
	})

	AfterAll(func() {
		if migrator != nil {
			_ = migrator.Close()
		}
		if container != nil {
			_ = container.Terminate(ctx)
		}
	})

	It("starts at version zero", func() {
		version, dirty, err := migrator.Version()
		Expect(err).NotTo(HaveOccurred())
		Expect(version).To(BeZero())
		Expect(dirty).To(BeFalse())
	})

	It("applies every migration", func() {
		Expect(migrator.Up()).To(Succeed())

		status, err := migrator.Status()
		Expect(err).NotTo(HaveOccurred())
		Expect(status.Version).To(Equal(uint(3)))
		Expect(status.Name).To(Equal("000003_verification_codes"))
		Expect(status.Pending).To(BeEmpty())
	})

	It("creates the auth tables", func() {
		pool, err := store.Connect(ctx, store.DefaultPoolConfig(connStr), nil)
		Expect(err).NotTo(HaveOccurred())
		defer pool.Close()

		var count int
		err = pool.QueryRow(ctx, `
			SELECT count(*) FROM information_schema.tables
			WHERE table_schema = 'public' AND table_name = ANY($1)
		`, []string{
			"users", "user_credentials", "oauth_accounts", "login_sessions",
			"signup_sessions", "password_reset_sessions",
			"account_association_sessions", "email_verification_codes",
		}).Scan(&count)
		Expect(err).NotTo(HaveOccurred())
		Expect(count).To(Equal(8))
	})

	It("steps down and back up", func() {
		Expect(migrator.Steps(-1)).To(Succeed())
		version, _, err := migrator.Version()
		Expect(err).NotTo(HaveOccurred())
		Expect(version).To(Equal(uint(2)))

		Expect(migrator.Steps(1)).To(Succeed())
		version, _, err = migrator.Version()
		Expect(err).NotTo(HaveOccurred())
		Expect(version).To(Equal(uint(3)))
	})

	It("rolls everything back", func() {
		Expect(migrator.Down()).To(Succeed())
		applied, err := migrator.AppliedMigrations()
		Expect(err).NotTo(HaveOccurred())
		Expect(applied).To(BeEmpty())
	})

	It("forces a version without running migrations", func() {
		Expect(migrator.Up()).To(Succeed())
		Expect(migrator.Force(1)).To(Succeed())

		version, dirty, err := migrator.Version()
		Expect(err).NotTo(HaveOccurred())
		Expect(version).To(Equal(uint(1)))
		Expect(dirty).To(BeFalse())
	})
})
