package logging

import "github.com/sirupsen/logrus"

// BaseFields 构建 action + 配置路径等基础字段，便于不同入口复用。
func BaseFields(action, configPath string) logrus.Fields {
	return logrus.Fields{
		"action":     action,
		"configPath": configPath,
	}
}

// OpFields 提供文件系统操作日志字段，handler 与挂载层复用。
func OpFields(op, path string) logrus.Fields {
	return logrus.Fields{
		"action": "fs_op",
		"op":     op,
		"path":   path,
	}
}

// UpstreamFields 提供单次回源请求的日志字段。
func UpstreamFields(method, path, worker string, status int) logrus.Fields {
	return logrus.Fields{
		"action": "upstream",
		"method": method,
		"path":   path,
		"worker": worker,
		"status": status,
	}
}
