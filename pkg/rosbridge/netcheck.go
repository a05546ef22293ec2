package rosbridge

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	probing "github.com/prometheus-community/pro-bing"
)

// Connectivity verdicts reported by CheckReachability.
const (
	StatusFullyAccessible = "Fully_accessible. The robot is reachable and the port is open, indicating that we are likely able to connect to ROS"
	StatusPortClosed      = "IP_reachable_port_closed. The robot is reachable but ROS_bridge is unreachable. Check if ROS_bridge is running as well as firewall settings."
	StatusUnusual         = "IP_unreachable_port_open. This is unusual."
	StatusUnreachable     = "IP_unreachable. Check if the IP address is correct, the robot is powered on & connected to the network. Also check network and firewall settings."
)

// PingResult is the ICMP half of a reachability check.
type PingResult struct {
	Success        bool     `json:"success"`
	Error          string   `json:"error,omitempty"`
	ResponseTimeMS *float64 `json:"response_time_ms"`
}

// PortResult is the TCP half of a reachability check.
type PortResult struct {
	Open  bool   `json:"open"`
	Error string `json:"error,omitempty"`
}

// Reachability reports whether a robot and its bridge port answer.
type Reachability struct {
	IP            string     `json:"ip"`
	Port          int        `json:"port_number"`
	Ping          PingResult `json:"ping"`
	PortCheck     PortResult `json:"port"`
	OverallStatus string     `json:"overall_status"`
}

// icmpPing sends the ICMP echo for CheckReachability. Tests swap it out.
var icmpPing = ping

// CheckReachability sends one ICMP echo to ip and then tries a TCP
// connection to port.
func CheckReachability(ctx context.Context, ip string, port int, pingTimeout, portTimeout time.Duration) *Reachability {
	if pingTimeout <= 0 {
		pingTimeout = 2 * time.Second
	}
	if portTimeout <= 0 {
		portTimeout = 2 * time.Second
	}

	res := &Reachability{IP: ip, Port: port}
	res.Ping = icmpPing(ctx, ip, pingTimeout)
	res.PortCheck = checkPort(ctx, ip, port, portTimeout)
	res.OverallStatus = overallStatus(res.Ping.Success, res.PortCheck.Open)
	return res
}

// ping uses an unprivileged UDP ICMP socket, so no root is needed where
// the kernel allows it (net.ipv4.ping_group_range on Linux).
func ping(ctx context.Context, ip string, timeout time.Duration) PingResult {
	p, err := probing.NewPinger(ip)
	if err != nil {
		return PingResult{Error: fmt.Sprintf("Ping error: %v", err)}
	}
	p.SetPrivileged(false)
	p.Count = 1
	p.Timeout = timeout

	if err := p.RunWithContext(ctx); err != nil {
		return PingResult{Error: fmt.Sprintf("Ping error: %v", err)}
	}
	return pingResult(p.Statistics(), timeout)
}

func pingResult(stats *probing.Statistics, timeout time.Duration) PingResult {
	if stats == nil || stats.PacketsRecv == 0 {
		return PingResult{Error: fmt.Sprintf("Ping timeout after %s", timeout)}
	}
	ms := float64(stats.AvgRtt) / float64(time.Millisecond)
	return PingResult{Success: true, ResponseTimeMS: &ms}
}

func checkPort(ctx context.Context, ip string, port int, timeout time.Duration) PortResult {
	d := net.Dialer{Timeout: timeout}
	conn, err := d.DialContext(ctx, "tcp", net.JoinHostPort(ip, strconv.Itoa(port)))
	if err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return PortResult{Error: fmt.Sprintf("Port %d connection timeout after %s", port, timeout)}
		}
		var dnsErr *net.DNSError
		if errors.As(err, &dnsErr) {
			return PortResult{Error: fmt.Sprintf("DNS resolution error: %v", dnsErr)}
		}
		return PortResult{Error: fmt.Sprintf("Port %d is closed or unreachable: %v", port, err)}
	}
	_ = conn.Close()
	return PortResult{Open: true}
}

func overallStatus(pinged, open bool) string {
	switch {
	case pinged && open:
		return StatusFullyAccessible
	case pinged:
		return StatusPortClosed
	case open:
		return StatusUnusual
	default:
		return StatusUnreachable
	}
}
