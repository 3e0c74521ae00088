package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"gopkg.in/yaml.v2"

	"github.com/spf13/viper"
)

// confset правит торговый блок yaml-конфига на месте. Процесс читает
// конфиг один раз на старте, поэтому после правки нужен рестарт.
//
//	confset                                      — показать значения
//	confset tp_mode=sniper be_buffer=7
//	CONFIG_FILE=values_prod.yaml confset default_risk_percent=0.5

var editableKeys = []string{
	"default_risk_percent",
	"tp_mode",
	"final_target",
	"be_enabled",
	"be_buffer",
	"trailing_enabled",
	"trailing_distance",
	"max_spread_gold",
	"max_spread_forex",
	"max_positions_per_symbol",
}

func configPath() string {
	name := os.Getenv("CONFIG_FILE")
	if name == "" {
		name = "values_local.yaml"
	}
	return "configs/" + name
}

// parseValue проверяет значение теми же правилами, что валидация конфига
// на старте: сломанный yaml свалит процесс только при рестарте, ловим раньше.
func parseValue(key, raw string) (interface{}, error) {
	switch key {
	case "tp_mode":
		switch raw {
		case "hybrid", "sniper", "split", "scalper", "progressive":
			return raw, nil
		}
		return nil, errors.Errorf("unknown tp_mode %q", raw)
	case "final_target":
		if raw != "tp2" && raw != "tp3" {
			return nil, errors.Errorf("final_target is tp2 or tp3, got %q", raw)
		}
		return raw, nil
	case "be_enabled", "trailing_enabled":
		v, err := strconv.ParseBool(raw)
		if err != nil {
			return nil, errors.Wrap(err, key)
		}
		return v, nil
	case "default_risk_percent", "be_buffer", "trailing_distance":
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, errors.Wrap(err, key)
		}
		if key == "default_risk_percent" && (v <= 0 || v > 10) {
			return nil, errors.Errorf("default_risk_percent out of range (0, 10]: %v", v)
		}
		if v < 0 {
			return nil, errors.Errorf("%s must be >= 0", key)
		}
		return v, nil
	case "max_spread_gold", "max_spread_forex", "max_positions_per_symbol":
		v, err := strconv.Atoi(raw)
		if err != nil {
			return nil, errors.Wrap(err, key)
		}
		if v < 0 {
			return nil, errors.Errorf("%s must be >= 0", key)
		}
		return v, nil
	}
	return nil, errors.Errorf("key %q is not editable", key)
}

func write(v *viper.Viper, path string) error {
	bs, err := yaml.Marshal(v.AllSettings())
	if err != nil {
		return errors.Wrap(err, "marshal config to yaml")
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, bs, 0o644); err != nil {
		return errors.Wrap(err, "write temp config")
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return errors.Wrap(err, "replace config")
	}
	return nil
}

func main() {
	path := configPath()

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		panic(fmt.Errorf("fatal error config file: %w", err))
	}

	if len(os.Args) < 2 {
		fmt.Println(path)
		for _, key := range editableKeys {
			fmt.Printf("  trading.%s = %v\n", key, v.Get("trading."+key))
		}
		return
	}

	for _, arg := range os.Args[1:] {
		key, raw, ok := strings.Cut(arg, "=")
		if !ok {
			panic(fmt.Errorf("want key=value, got %q", arg))
		}
		val, err := parseValue(key, raw)
		if err != nil {
			panic(err)
		}
		old := v.Get("trading." + key)
		v.Set("trading."+key, val)
		fmt.Printf("trading.%s: %v -> %v\n", key, old, val)
	}

	if err := write(v, path); err != nil {
		panic(err)
	}
	fmt.Println("done")
}
