package app

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// 默认 Token 签发者
const DefaultTokenIssuer = "schedule-note-sync"

// TokenConfig 设备 Token 管理器配置
type TokenConfig struct {
	SecretKey string        // JWT 签名密钥
	Expiry    time.Duration // Token 有效期，0 表示不过期
	Issuer    string        // Token 签发者
}

// TokenManager 设备 Token 管理接口
type TokenManager interface {
	Generate(deviceID string) (string, error)
	Parse(token string) (*DeviceEntity, error)
	Validate(token string, deviceID string) error
}

// DeviceEntity represents the device claims stored in the JWT, Subject is the device id
// DeviceEntity 设备凭证中的声明，Subject 为设备 ID
type DeviceEntity struct {
	DeviceID string `json:"deviceId"`
	jwt.RegisteredClaims
}

type tokenManager struct {
	config TokenConfig
}

// NewTokenManager 创建一个新的 TokenManager 实例
func NewTokenManager(cfg TokenConfig) TokenManager {
	if cfg.Issuer == "" {
		cfg.Issuer = DefaultTokenIssuer
	}
	return &tokenManager{config: cfg}
}

// Generate 为设备签发一个新的 JWT Token
func (t *tokenManager) Generate(deviceID string) (string, error) {
	if deviceID == "" {
		return "", fmt.Errorf("device id is empty")
	}
	now := time.Now()
	claims := &DeviceEntity{
		DeviceID: deviceID,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now.Add(-time.Minute)),
			Issuer:    t.config.Issuer,
			Subject:   deviceID,
		},
	}
	if t.config.Expiry != 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(t.config.Expiry))
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(t.config.SecretKey))
}

// Parse 解析 JWT Token 并返回设备信息
func (t *tokenManager) Parse(token string) (*DeviceEntity, error) {
	claims := &DeviceEntity{}

	parsedToken, err := jwt.ParseWithClaims(token, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(t.config.SecretKey), nil
	}, jwt.WithIssuer(t.config.Issuer))
	if err != nil {
		return nil, err
	}
	if !parsedToken.Valid {
		return nil, fmt.Errorf("invalid token")
	}
	return claims, nil
}

// Validate checks the token signature and that it was issued to deviceID
// Validate 校验 Token 签名且确认其签发给 deviceID
func (t *tokenManager) Validate(token string, deviceID string) error {
	claims, err := t.Parse(token)
	if err != nil {
		return err
	}
	if claims.Subject != deviceID || claims.DeviceID != deviceID {
		return fmt.Errorf("token was not issued to device %q", deviceID)
	}
	return nil
}
