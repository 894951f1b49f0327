// Package config는 환경 변수 기반 설정 값 조회를 제공하는 패키지입니다.
package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config 인터페이스는 설정 값에 액세스하기 위한 메서드를 정의합니다.
type Config interface {
	IsSet(key string) bool
	GetString(key string) string
	GetInt(key string) int
	GetBool(key string) bool
	GetFloat64(key string) float64
	GetDuration(key string) time.Duration
	GetStringSlice(key string) []string
}

// viperConfig는 viper를 사용하여 Config 인터페이스를 구현합니다.
type viperConfig struct {
	v *viper.Viper
}

func (c *viperConfig) IsSet(key string) bool                { return c.v.IsSet(key) }
func (c *viperConfig) GetString(key string) string          { return c.v.GetString(key) }
func (c *viperConfig) GetInt(key string) int                { return c.v.GetInt(key) }
func (c *viperConfig) GetBool(key string) bool              { return c.v.GetBool(key) }
func (c *viperConfig) GetFloat64(key string) float64        { return c.v.GetFloat64(key) }
func (c *viperConfig) GetDuration(key string) time.Duration { return c.v.GetDuration(key) }
func (c *viperConfig) GetStringSlice(key string) []string   { return c.v.GetStringSlice(key) }

// FromEnv는 접두사가 붙은 환경 변수를 점 표기 키로 조회하는 설정을 만듭니다.
// 예: 접두사 PAYMENT, 키 "database.password" → PAYMENT_DATABASE_PASSWORD
func FromEnv(prefix string) Config {
	v := viper.New()
	v.SetEnvPrefix(strings.ToUpper(prefix))
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return &viperConfig{v: v}
}

// Override는 환경 변수가 설정된 경우에만 대상 문자열을 덮어씁니다.
func Override(c Config, key string, dst *string) {
	if c.IsSet(key) {
		if val := c.GetString(key); val != "" {
			*dst = val
		}
	}
}
