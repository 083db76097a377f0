package logging

import "github.com/sirupsen/logrus"

// BaseFields 构建 action + 配置路径等基础字段，便于不同入口复用。
func BaseFields(action, configPath string) logrus.Fields {
	return logrus.Fields{
		"action":     action,
		"configPath": configPath,
	}
}

// RequestFields 提供请求 ID、方法与路径字段，供访问日志与下载日志复用。
func RequestFields(requestID, method, path string) logrus.Fields {
	return logrus.Fields{
		"request_id": requestID,
		"method":     method,
		"path":       path,
	}
}

// RetrievalFields 描述一次检索的结果：是否直链、落盘文件名与体积。
func RetrievalFields(fileName string, sizeBytes int64, directLink bool) logrus.Fields {
	fields := logrus.Fields{
		"direct_link": directLink,
		"size_bytes":  sizeBytes,
	}
	if fileName != "" {
		fields["file_name"] = fileName
	}
	return fields
}
