// watch подключается к серверу как клиент реального времени и печатает
// изменения локального кэша.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"chatTracker/internal/client"
	"chatTracker/internal/logger"
	"chatTracker/internal/models/event"

	"github.com/spf13/pflag"
	"go.uber.org/zap"
)

func main() {
	flags := pflag.NewFlagSet("watch", pflag.ExitOnError)
	serverURL := flags.String("url", "http://localhost:8080", "адрес сервера")
	room := flags.String("room", "", "комната; пусто - все комнаты")
	limit := flags.Int("limit", 100, "сколько последних сообщений загрузить")
	capacity := flags.Int("capacity", client.DefaultCapacity, "сколько сообщений держать в кэше")
	debug := flags.Bool("debug", false, "подробный журнал")
	_ = flags.Parse(os.Args[1:])

	if err := logger.Init(*debug); err != nil {
		fmt.Fprintf(os.Stderr, "инициализация логгера: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	var c *client.Client
	c, err := client.New(client.Options{
		BaseURL:  *serverURL,
		Room:     *room,
		Limit:    *limit,
		Capacity: *capacity,
		OnState: func(s client.State) {
			if s == client.StateConnected {
				fmt.Printf("[%s] сообщений: %d, задач: %d\n", s, len(c.Store().Messages()), len(c.Store().Tasks()))
				return
			}
			fmt.Printf("[%s]\n", s)
		},
		OnEvent: func(env event.Envelope) {
			printEvent(c, env)
		},
	})
	if err != nil {
		logger.Error("Watch: Неверные параметры", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := c.Run(ctx); err != nil {
		logger.Error("Watch: Клиент остановлен с ошибкой", err)
		os.Exit(1)
	}
}

func printEvent(c *client.Client, env event.Envelope) {
	switch env.Type {
	case event.MessageReceived, event.MessageUpdated, event.MessageDeleted:
		msgs := c.Store().Messages()
		if len(msgs) == 0 {
			fmt.Printf("%s: кэш пуст\n", env.Type)
			return
		}
		last := msgs[len(msgs)-1]
		fmt.Printf("%s: всего %d, последнее #%d %s: %s\n", env.Type, len(msgs), last.ID, last.User, last.Text)
	case event.TasksUpdated:
		for _, t := range c.Store().Tasks() {
			fmt.Printf("  #%d [%s %d%%] %s\n", t.ID, t.Status, t.Progress, t.Title)
		}
	case event.Error:
		payload, err := event.Decode[event.ErrorPayload](env)
		if err != nil {
			logger.Warn("Watch: Неразборчивая ошибка сервера", zap.Error(err))
			return
		}
		fmt.Printf("ошибка %s: %s\n", payload.Code, payload.Message)
	}
}
