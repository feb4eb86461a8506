package main

import (
	"errors"
	"fmt"

	"runquest/internal/db"

	"github.com/spf13/cobra"
)

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "自动迁移数据表",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			gdb, err := db.InitDB(cfg)
			if err != nil {
				return err
			}
			db.Close(gdb)
			fmt.Fprintln(cmd.OutOrStdout(), "迁移完成")
			return nil
		},
	}
}

func newSeedCmd() *cobra.Command {
	var catalogPath string

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "导入关卡目录（已有关卡时跳过）",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			challenges, err := db.LoadCatalogFile(catalogPath)
			if err != nil {
				return err
			}

			gdb, err := db.InitDB(cfg)
			if err != nil {
				return err
			}
			defer db.Close(gdb)

			n, err := db.SeedChallenges(gdb, challenges)
			if err != nil {
				return err
			}
			if n == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "关卡已存在，跳过")
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "已导入 %d 个关卡\n", n)
			return nil
		},
	}
	cmd.Flags().StringVar(&catalogPath, "catalog", "config/catalog.yaml", "关卡目录文件")
	return cmd
}

func newResetDBCmd() *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "reset-db",
		Short: "删除并重建全部数据表",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return errors.New("该操作会清空所有数据，确认请加 --yes")
			}
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			gdb, err := db.Open(cfg.Database)
			if err != nil {
				return err
			}
			defer db.Close(gdb)

			if err := db.Reset(gdb); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "数据表已重建")
			return nil
		},
	}
	cmd.Flags().BoolVar(&yes, "yes", false, "确认清空")
	return cmd
}
