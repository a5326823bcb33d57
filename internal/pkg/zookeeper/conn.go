// internal/pkg/zookeeper/conn.go
package zookeeper

import (
	"strings"
	"time"

	"github.com/go-zookeeper/zk"
	"github.com/pkg/errors"
)

// Conn 封装了 zk.Conn，收敛本项目用到的少量操作。
type Conn struct {
	*zk.Conn
}

// Connect 建立到 ZooKeeper 集群的连接。
// servers 格式为 "host1:2181,host2:2181"。
func Connect(servers string, sessionTimeout time.Duration) (*Conn, error) {
	conn, _, err := zk.Connect(strings.Split(servers, ","), sessionTimeout)
	if err != nil {
		return nil, errors.Wrap(err, "failed to connect to zookeeper")
	}
	return &Conn{Conn: conn}, nil
}
