package main

type Config struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
	Query  string `yaml:"query"`
	// 查询超时，单位秒，0 表示不限制
	Timeout int `yaml:"timeout"`
	// 最多返回多少行，0 表示不限制
	MaxRows int `yaml:"maxRows"`
}
