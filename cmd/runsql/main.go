package main

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/mattn/go-sqlite3"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/meoying/sqltemplate/datasource/single"
	"github.com/meoying/sqltemplate/template"
	"github.com/meoying/sqltemplate/translator"
)

func main() {
	cfile := pflag.String("config",
		"config/config.yaml", "配置文件路径")
	pflag.Parse()
	viper.SetConfigType("yaml")

	viper.SetConfigFile(*cfile)
	err := viper.ReadInConfig()
	if err != nil {
		panic(fmt.Errorf("初始化读取配置文件失败 %w", err))
	}
	var cfg Config
	err = viper.Unmarshal(&cfg)
	if err != nil {
		panic(fmt.Errorf("解析配置文件失败 %w", err))
	}

	db, err := sql.Open(cfg.Driver, cfg.DSN)
	if err != nil {
		panic(fmt.Errorf("初始化数据库连接失败 %w", err))
	}
	defer db.Close()

	tplCfg := template.DefaultConfig()
	if cfg.MaxRows > 0 {
		tplCfg.MaxRows = cfg.MaxRows
	}
	if cfg.Timeout > 0 {
		tplCfg.QueryTimeout = time.Duration(cfg.Timeout) * time.Second
	}
	tpl := template.New(single.NewConnectionSource(db),
		template.WithTranslator(translatorFor(cfg.Driver)),
		template.WithConfig(tplCfg))

	rows, err := tpl.QueryForMapList(context.Background(), cfg.Query)
	if err != nil {
		panic(fmt.Errorf("执行查询失败 %w", err))
	}
	for i, row := range rows {
		fmt.Printf("第 %d 行\n", i+1)
		for _, key := range row.Keys() {
			val, _ := row.Get(key)
			fmt.Printf("  %s = %v\n", key, val)
		}
	}
	fmt.Printf("共 %d 行\n", len(rows))
}

func translatorFor(driver string) translator.ErrorTranslator {
	switch driver {
	case "mysql":
		return translator.MySQL{}
	case "sqlite3":
		return translator.SQLite{}
	default:
		return translator.Uncategorized{}
	}
}
