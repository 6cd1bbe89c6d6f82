// Package line adapts the LINE Messaging API to the conversation package.
//
// ParseRequest verifies the X-Line-Signature header against the channel
// secret and turns a webhook batch into conversation.Events. Only image and
// text messages are kept; follows, stickers, postbacks and the like are
// dropped because nothing in the bot reacts to them.
//
// Client sends replies and downloads message content:
//
//	client, err := line.NewClient(token, line.DefaultMaxContentBytes, logger)
//	data, err := client.Fetch(ctx, messageID)
//	err = client.Reply(ctx, replyToken, "hello")
package line
