// internal/pkg/utils/net.go
package utils

import (
	"net"

	"github.com/pkg/errors"
)

// GetOutboundIP 获取本机对外通信使用的 IP 地址。
// 通过向公网地址发起一次 UDP "连接"（不会真正发包）来让内核选择出口网卡。
func GetOutboundIP() (string, error) {
	conn, err := net.Dial("udp", "8.8.8.8:80")
	if err != nil {
		return "", errors.Wrap(err, "failed to determine outbound ip")
	}
	defer conn.Close()

	localAddr, ok := conn.LocalAddr().(*net.UDPAddr)
	if !ok {
		return "", errors.New("unexpected local address type")
	}
	return localAddr.IP.String(), nil
}
