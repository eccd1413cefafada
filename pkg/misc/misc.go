package misc

import (
	"strings"
	"time"
	"unicode/utf8"

	"github.com/hashicorp/go-uuid"
	"github.com/lithammer/shortuuid/v4"

	"gopkg.in/resty.v1"
)

// RestyClient 创建一个失败自动重试的 HTTP 客户端
func RestyClient(retryCount int) *resty.Client {
	return resty.New().
		SetRetryCount(retryCount).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(30 * time.Second).
		AddRetryCondition(func(r *resty.Response) (bool, error) {
			statusCode := r.StatusCode()
			return statusCode > 399 && statusCode != 400 && statusCode != 404, nil
		})
}

// UUID 生成一个 UUID
func UUID() string {
	ret, _ := uuid.GenerateUUID()
	return ret
}

// ShortUUID 生成一个短 UUID
func ShortUUID() string {
	return shortuuid.New()
}

// SubString 截取字符串，超长时在结尾追加省略号
func SubString(str string, length int) string {
	size := utf8.RuneCountInString(str)
	if size <= length {
		return str
	}

	return string([]rune(str)[:length]) + "..."
}

// AddImageBase64Prefix 添加 base64 图片的前缀
func AddImageBase64Prefix(base64Image, mimeType string) string {
	return "data:" + mimeType + ";base64," + base64Image
}

// IsDataURI 判断字符串是否已经是 data-URI 格式
func IsDataURI(image string) bool {
	return strings.HasPrefix(image, "data:")
}
