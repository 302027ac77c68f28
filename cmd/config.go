package cmd

import (
	"os"
	"strings"

	"github.com/haierkeys/schedule-note-sync/pkg/fileurl"
	"github.com/haierkeys/schedule-note-sync/pkg/util"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// defaultTokenKey 内嵌配置中的占位密钥，自动创建配置时替换为随机值
const defaultTokenKey = "schedule-note-sync-Device-Token"

// resolveConfigFile returns the config path to use, writing the embedded default when none exists
// resolveConfigFile 返回要使用的配置文件路径，都不存在时写入内嵌默认配置
func resolveConfigFile(path string) (string, error) {
	if path != "" {
		return path, nil
	}
	for _, p := range []string{"config/config-dev.yaml", "config.yaml", "config/config.yaml"} {
		if fileurl.IsExist(p) {
			return p, nil
		}
	}

	path = "config/config.yaml"
	bootstrapLogger.Warn("config file not found, creating default config")
	content := strings.Replace(configDefault, defaultTokenKey, util.GetRandomString(32), 1)
	if _, err := fileurl.WriteFileIfAbsent(path, content); err != nil {
		return "", errors.Wrap(err, "config file auto create error")
	}
	if err := os.Chmod(path, 0o600); err != nil {
		bootstrapLogger.Warn("config file permission not restricted", zap.Error(err))
	}
	bootstrapLogger.Info("config file auto create successfully", zap.String("path", path))
	return path, nil
}
