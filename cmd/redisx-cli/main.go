package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/alecthomas/kong"

	"github.com/maxubrq/redisX/pkg/client"
	"github.com/maxubrq/redisX/pkg/common"
	"github.com/maxubrq/redisX/pkg/resp"
)

var (
	logger = common.InitLogger().WithName("redisx-cli")
	cfg    client.Config
)

func main() {
	kctx := kong.Parse(&cfg)
	c, err := client.New(cfg)
	kctx.FatalIfErrorf(err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := c.Connect(ctx); err != nil {
		logger.Error(err, "connect failed")
		os.Exit(1)
	}
	defer c.Close()

	c.OnPush(func(v resp.Value) {
		logger.Info("push", "value", describe(v))
	})

	logger.Info("connected", "serverInfo", c.ServerInfo())
	repl(c)
}

func repl(c *client.Client) {
	scanner := bufio.NewScanner(os.Stdin)
	fmt.Print("redisx> ")
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			fmt.Print("redisx> ")
			continue
		}
		tokens := strings.Fields(line)
		verb := tokens[0]
		args := make([]any, 0, len(tokens)-1)
		for _, tok := range tokens[1:] {
			args = append(args, tok)
		}

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		v, err := c.Send(ctx, verb, args...)
		cancel()
		if err != nil {
			fmt.Println("(error)", err)
		} else {
			fmt.Println(describe(v))
		}
		fmt.Print("redisx> ")
	}
}

func describe(v resp.Value) string {
	switch v.Kind {
	case resp.KindSimpleString:
		return v.Text
	case resp.KindBlobString:
		if v.IsNull() {
			return "(nil)"
		}
		return string(v.Blob)
	case resp.KindInteger:
		return fmt.Sprintf("(integer) %d", v.Int)
	case resp.KindError, resp.KindBlobError:
		return fmt.Sprintf("(error) %s %s", v.Code, v.Message)
	default:
		return fmt.Sprintf("%+v", v)
	}
}
