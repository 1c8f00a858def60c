package chat

import (
	"context"
	"fmt"
	"strconv"
	"strings"
)

const helpText = `*Commands*
/retailer <name>  start shopping with a retailer
/add <n> [size]   add item n from the latest list
/remove <n>       remove one of item n
/cart             show your cart
/confirm          place the cart or submit the open step
/cancel           empty the cart
/back             search again
/new              start a new chat
/help             show this help`

// Handle routes one line of input. Lines starting with "/" are commands;
// anything else is Text.
func (e *Engine) Handle(ctx context.Context, input string) error {
	input = strings.TrimSpace(input)
	if !strings.HasPrefix(input, "/") {
		return e.Text(ctx, input)
	}

	fields := strings.Fields(input)
	cmd := strings.ToLower(fields[0])
	args := fields[1:]
	e.log.PushUser(input)

	switch cmd {
	case "/help":
		e.log.PushSystem(helpText)
		return nil
	case "/retailer", "/shop":
		if len(args) == 0 {
			e.log.PushSystem("Available retailers: " + strings.Join(e.Choices(), ", "))
			return nil
		}
		return e.SelectRetailer(args[0])
	case "/new":
		return e.NewChat()
	case "/add", "/select", "/inc":
		n, err := position(args)
		if err != nil {
			e.log.PushSystem(":warning: Usage: /add <number> [size]")
			return err
		}
		size := ""
		if len(args) > 1 {
			size = args[1]
		}
		return e.Select(n, size)
	case "/remove", "/dec":
		n, err := position(args)
		if err != nil {
			e.log.PushSystem(":warning: Usage: /remove <number>")
			return err
		}
		return e.Decrement(n)
	case "/cart":
		e.CartSummary()
		return nil
	case "/confirm", "/submit":
		return e.Confirm(ctx)
	case "/cancel":
		e.Cancel()
		return nil
	case "/back":
		ctrl, err := e.controller()
		if err != nil {
			return e.explain(err)
		}
		if err := ctrl.Back(); err != nil {
			e.log.PushSystem(":warning: Nothing to go back to here.")
			return err
		}
		if f, ok := ctrl.Pending(); ok {
			e.log.PushSystem(f.Ask())
		}
		return nil
	default:
		e.log.PushSystem(fmt.Sprintf(":warning: Unknown command %s. Type /help.", cmd))
		return fmt.Errorf("unknown command: %s", cmd)
	}
}

func position(args []string) (int, error) {
	if len(args) == 0 {
		return 0, fmt.Errorf("missing item number")
	}
	n, err := strconv.Atoi(strings.TrimPrefix(args[0], "#"))
	if err != nil {
		return 0, fmt.Errorf("invalid item number %q", args[0])
	}
	return n, nil
}
