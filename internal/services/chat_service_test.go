package services

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/amukhametyanov/youtube-scripter-and-visualizer/internal/models"
)

// fakeChatGateway 可控的聊天网关
type fakeChatGateway struct {
	mu    sync.Mutex
	reply string
	err   error
	gate  chan struct{} // 非nil时调用阻塞于此
	calls int
}

func (g *fakeChatGateway) SendChatMessage(ctx context.Context, message string) (string, error) {
	if g.gate != nil {
		<-g.gate
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	if g.err != nil {
		return "", g.err
	}
	return g.reply, nil
}

func (g *fakeChatGateway) callCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}

func TestChatSendMessage(t *testing.T) {
	t.Run("成功时追加用户和助手消息", func(t *testing.T) {
		s := NewChatService(&fakeChatGateway{reply: "Hello!"})

		transcript := s.SendMessage(context.Background(), "Hi")
		if len(transcript) != 2 {
			t.Fatalf("期望2条消息, 实际 %d", len(transcript))
		}
		if transcript[0].Sender != models.ChatSenderUser || transcript[0].Text != "Hi" {
			t.Errorf("用户消息不正确: %+v", transcript[0])
		}
		if transcript[1].Sender != models.ChatSenderBot || transcript[1].Text != "Hello!" {
			t.Errorf("助手消息不正确: %+v", transcript[1])
		}
	})

	t.Run("空消息不做任何事", func(t *testing.T) {
		gateway := &fakeChatGateway{reply: "should not appear"}
		s := NewChatService(gateway)

		transcript := s.SendMessage(context.Background(), "   ")
		if len(transcript) != 0 {
			t.Errorf("空消息不应产生记录, 实际 %d 条", len(transcript))
		}
		if gateway.callCount() != 0 {
			t.Error("空消息不应调用网关")
		}
	})

	t.Run("失败时保留用户消息并追加兜底回复", func(t *testing.T) {
		s := NewChatService(&fakeChatGateway{err: fmt.Errorf("upstream down")})

		transcript := s.SendMessage(context.Background(), "Hi")
		if len(transcript) != 2 {
			t.Fatalf("期望2条消息, 实际 %d", len(transcript))
		}
		if transcript[0].Text != "Hi" {
			t.Error("失败时用户消息应保留在记录中")
		}
		if transcript[1].Text != MsgChatFallback {
			t.Errorf("期望兜底回复, 实际 %q", transcript[1].Text)
		}
	})

	t.Run("消息在途时新消息被忽略", func(t *testing.T) {
		gate := make(chan struct{})
		gateway := &fakeChatGateway{reply: "done", gate: gate}
		s := NewChatService(gateway)

		go s.SendMessage(context.Background(), "first")

		// 等待第一条进入在途状态
		deadline := time.Now().Add(2 * time.Second)
		for time.Now().Before(deadline) && !s.Pending() {
			time.Sleep(5 * time.Millisecond)
		}
		if !s.Pending() {
			t.Fatal("第一条消息未进入在途状态")
		}

		transcript := s.SendMessage(context.Background(), "second")
		for _, msg := range transcript {
			if msg.Text == "second" {
				t.Error("在途期间的新消息不应进入记录")
			}
		}

		close(gate)

		deadline = time.Now().Add(2 * time.Second)
		for time.Now().Before(deadline) && s.Pending() {
			time.Sleep(5 * time.Millisecond)
		}
		if got := len(s.History()); got != 2 {
			t.Errorf("最终应只有第一条消息的两个回合, 实际 %d", got)
		}
		if gateway.callCount() != 1 {
			t.Errorf("网关应只被调用一次, 实际 %d", gateway.callCount())
		}
	})

	t.Run("History返回副本", func(t *testing.T) {
		s := NewChatService(&fakeChatGateway{reply: "ok"})
		s.SendMessage(context.Background(), "Hi")

		history := s.History()
		history[0].Text = "mutated"

		if s.History()[0].Text != "Hi" {
			t.Error("外部修改不应影响内部记录")
		}
	})
}
