package db

import (
	"strings"
	"testing"

	"runquest/internal/config"
	"runquest/internal/model"

	"gorm.io/gorm"
)

func TestDSN(t *testing.T) {
	tests := []struct {
		name string
		cfg  config.DatabaseConfig
		want string
	}{
		{
			name: "mysql",
			cfg: config.DatabaseConfig{
				Driver: "mysql", Host: "127.0.0.1", Port: 3306,
				User: "root", Password: "pw", DBName: "runquest", Charset: "utf8mb4",
			},
			want: "root:pw@tcp(127.0.0.1:3306)/runquest?charset=utf8mb4&parseTime=True&loc=UTC",
		},
		{
			name: "explicit dsn wins",
			cfg:  config.DatabaseConfig{Driver: "mysql", Host: "ignored", DSN: "u:p@tcp(db:3306)/x"},
			want: "u:p@tcp(db:3306)/x",
		},
		{
			name: "sqlite path",
			cfg:  config.DatabaseConfig{Driver: "sqlite", Path: "data/runquest.db"},
			want: "data/runquest.db?_foreign_keys=on&_busy_timeout=5000",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DSN(tt.cfg); got != tt.want {
				t.Errorf("DSN() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSqliteDSN_AppendsToQuery(t *testing.T) {
	got := sqliteDSN("file:x?mode=memory")
	if !strings.HasPrefix(got, "file:x?mode=memory&") || !strings.Contains(got, "_foreign_keys=on") {
		t.Errorf("sqliteDSN() = %q", got)
	}
}

func openTest(t *testing.T) *gorm.DB {
	t.Helper()
	gdb, err := OpenMemory(strings.ReplaceAll(t.Name(), "/", "_"))
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	t.Cleanup(func() { Close(gdb) })
	return gdb
}

func TestMigrate_CreatesTables(t *testing.T) {
	gdb := openTest(t)
	for _, m := range AllModels() {
		if !gdb.Migrator().HasTable(m) {
			t.Errorf("table for %T not created", m)
		}
	}
}

// 删除用户级联删除 run 与历史
func TestForeignKeys_UserCascade(t *testing.T) {
	gdb := openTest(t)

	c := model.Challenge{Tier: 1, Title: "X"}
	mustCreate(t, gdb, &c)
	mustCreate(t, gdb, &model.User{ID: "u1"})
	run := model.Run{ID: "r1", UserID: "u1", Public: true}
	mustCreate(t, gdb, &run)
	mustCreate(t, gdb, &model.RunStep{RunID: "r1", ChallengeID: c.ID})

	if err := gdb.Delete(&model.User{ID: "u1"}).Error; err != nil {
		t.Fatalf("delete user: %v", err)
	}
	assertCount(t, gdb, &model.Run{}, 0)
	assertCount(t, gdb, &model.RunStep{}, 0)
	assertCount(t, gdb, &model.Challenge{}, 1)
}

// 删除关卡：pending 置空，历史级联删除
func TestForeignKeys_ChallengeDelete(t *testing.T) {
	gdb := openTest(t)

	c := model.Challenge{Tier: 1, Title: "X"}
	mustCreate(t, gdb, &c)
	mustCreate(t, gdb, &model.User{ID: "u1"})
	id := c.ID
	mustCreate(t, gdb, &model.Run{ID: "r1", UserID: "u1", PendingChallengeID: &id})
	mustCreate(t, gdb, &model.RunStep{RunID: "r1", ChallengeID: c.ID})

	if err := gdb.Delete(&model.Challenge{}, c.ID).Error; err != nil {
		t.Fatalf("delete challenge: %v", err)
	}
	var run model.Run
	if err := gdb.First(&run, "id = ?", "r1").Error; err != nil {
		t.Fatalf("load run: %v", err)
	}
	if run.PendingChallengeID != nil {
		t.Errorf("PendingChallengeID = %d, want nil", *run.PendingChallengeID)
	}
	assertCount(t, gdb, &model.RunStep{}, 0)
}

func TestReset_DropsData(t *testing.T) {
	gdb := openTest(t)
	mustCreate(t, gdb, &model.Challenge{Tier: 1, Title: "X"})

	if err := Reset(gdb); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	assertCount(t, gdb, &model.Challenge{}, 0)
}

func mustCreate(t *testing.T, gdb *gorm.DB, v interface{}) {
	t.Helper()
	if err := gdb.Create(v).Error; err != nil {
		t.Fatalf("create %T: %v", v, err)
	}
}

func assertCount(t *testing.T, gdb *gorm.DB, m interface{}, want int64) {
	t.Helper()
	var n int64
	if err := gdb.Model(m).Count(&n).Error; err != nil {
		t.Fatalf("count %T: %v", m, err)
	}
	if n != want {
		t.Errorf("count %T = %d, want %d", m, n, want)
	}
}
