package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"petlobby/lobby"
)

// PetLobby 客户端入口：锁定会话身份、连接大厅并启动同步主循环
func main() {
	var (
		sessionPath string
		debugAddr   string
	)
	flag.StringVar(&sessionPath, "session", "lobby_session.json", "session store file path")
	flag.StringVar(&debugAddr, "debug", ":8081", "debug http listen address, empty to disable")
	flag.Parse()

	cfg, err := lobby.LoadConfig()
	if err != nil {
		panic(err)
	}
	// 使用第三方 zap 日志库写入日志文件（带滚动）
	if err := lobby.InitLogger(cfg.LogFile); err != nil {
		panic(err)
	}
	defer lobby.SyncLogger()

	store, err := lobby.OpenFileStore(sessionPath)
	if err != nil {
		lobby.Log.Fatalf("open session store %s: %v", sessionPath, err)
	}

	metrics := &lobby.SessionMetrics{}
	gw := lobby.NewGateway(cfg, metrics)

	front := &logFrontend{}
	sess, err := lobby.NewSession(cfg, store, gw, gw.Inbound(),
		front.newSprite, front, front, metrics)
	if err != nil {
		lobby.Log.Errorf("session init failed: %v", err)
		os.Exit(1)
	}

	sess.Start(context.Background())
	if err := sess.Connect(gw); err != nil {
		lobby.Log.Fatalf("connect: %v", err)
	}
	go sess.Run()

	if debugAddr != "" {
		go func() {
			lobby.Log.Infof("debug http listening on %s", debugAddr)
			if err := http.ListenAndServe(debugAddr, lobby.NewDebugMux(sess, metrics)); err != nil {
				lobby.Log.Errorf("debug http: %v", err)
			}
		}()
	}

	// 优雅退出（Ctrl+C）
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	lobby.Log.Info("Shutting down...")
	sess.Stop()
	gw.Close()
}

// logFrontend 无头运行时的界面协作方：所有呈现都落到日志。
// 真正的渲染端替换这里的实现即可，核心不感知差异。
type logFrontend struct{}

func (f *logFrontend) Alert(title, text string) {
	lobby.Log.Infof("[alert] %s %s", title, text)
}

func (f *logFrontend) ConfirmCancel(peerName string) {
	lobby.Log.Infof("[confirm] 您确定要取消对 %s 的对战邀请吗？", peerName)
}

func (f *logFrontend) PromptInvite(inv lobby.Invite) {
	lobby.Log.Infof("[prompt] 收到 %s 的%s邀请", inv.SenderName, inviteLabel(inv.Kind))
}

func (f *logFrontend) PendingCount(n int) {
	lobby.Log.Infof("[badge] 待处理邀请 %d 条", n)
}

func (f *logFrontend) ShowCountdown(peerName string, secondsLeft int) {
	lobby.Log.Infof("[countdown] 等待 %s 接受对战... %d", peerName, secondsLeft)
}

func (f *logFrontend) ChatOpened(peerName string, peerID lobby.UserID, ready bool) {
	if ready {
		lobby.Log.Infof("[chat] 与 %s(%d) 通讯中", peerName, peerID)
	} else {
		lobby.Log.Infof("[chat] 正在等待 %s(%d) 同意通讯...", peerName, peerID)
	}
}

func (f *logFrontend) ChatMessage(from lobby.UserID, text string) {
	lobby.Log.Infof("[chat] %d: %s", from, text)
}

func (f *logFrontend) SetLocalFacing(d lobby.Direction) {
	lobby.Log.Debugf("[sprite] local facing %s", d)
}

func (f *logFrontend) ToLogin() { lobby.Log.Info("[nav] -> login") }

func (f *logFrontend) ToBattle() { lobby.Log.Info("[nav] -> battle") }

func (f *logFrontend) ToSolo() { lobby.Log.Info("[nav] -> solo") }

func (f *logFrontend) newSprite(id lobby.UserID, name string) lobby.Sprite {
	return &logSprite{id: id, name: name}
}

type logSprite struct {
	id   lobby.UserID
	name string
}

func (s *logSprite) MoveTo(x, y float64) {
	lobby.Log.Debugf("[sprite] %s(%d) -> (%.1f, %.1f)", s.name, s.id, x, y)
}

func (s *logSprite) SetName(name string) { s.name = name }

func (s *logSprite) Remove() {
	lobby.Log.Debugf("[sprite] %s(%d) removed", s.name, s.id)
}

func inviteLabel(k lobby.InviteKind) string {
	if k == lobby.InviteBattle {
		return "对战"
	}
	return "通讯"
}
