package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/hakola/stageflow/internal"
	"github.com/hakola/stageflow/internal/security"
	"github.com/hakola/stageflow/internal/service"
	"github.com/hakola/stageflow/internal/settings"
	"github.com/hakola/stageflow/internal/store"
	"github.com/hakola/stageflow/internal/util"
	"golang.org/x/term"

	_ "modernc.org/sqlite"
)

const usage = `usage: stageflowctl <command>

commands:
  secret-add      prompt for a secret name and value and store it encrypted
  secret-list     list stored secret names
  secret-delete   delete a secret by id
  agent-add       register a build agent, prompting for its SSH private key
  agent-list      list registered agents
`

func main() {
	flag.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	flag.Parse()
	if flag.NArg() < 1 {
		flag.Usage()
		os.Exit(2)
	}

	internal.InitializeConfiguration()
	if exists, _ := util.PathExists(internal.DotEnvPath); exists {
		settings.ReadDotenv(internal.DotEnvPath)
	}
	settings.Settings = settings.NewSettings()

	rdb := store.InitDatabase(true)
	defer rdb.Close()
	rwdb := store.InitDatabase(false)
	defer rwdb.Close()
	store.RunMigrations(rwdb, internal.MigrationsDir)

	aesEncrypter := security.NewAESEncrypter([]byte(os.Getenv("STAGEFLOW_HASH_KEY")))
	secretSvc := service.NewSecretService(store.NewSecretSQLiteStore(rdb, rwdb), aesEncrypter)
	agentSvc := service.NewAgentService(store.NewAgentSQLiteStore(rdb, rwdb), aesEncrypter)

	ctx := context.Background()
	switch flag.Arg(0) {
	case "secret-add":
		secretAdd(ctx, secretSvc)
	case "secret-list":
		secretList(ctx, secretSvc)
	case "secret-delete":
		secretDelete(ctx, secretSvc)
	case "agent-add":
		agentAdd(ctx, agentSvc)
	case "agent-list":
		agentList(ctx, agentSvc)
	default:
		flag.Usage()
		os.Exit(2)
	}
}

func prompt(label string) string {
	fmt.Print(label + ": ")
	scanner := bufio.NewScanner(os.Stdin)
	if !scanner.Scan() {
		log.Fatal("err reading input")
	}
	return strings.TrimSpace(scanner.Text())
}

func promptHidden(label string) string {
	fmt.Print(label + ": ")
	b, err := term.ReadPassword(int(syscall.Stdin))
	if err != nil {
		log.Fatal(err)
	}
	fmt.Println()
	return string(b)
}

func secretAdd(ctx context.Context, secretSvc *service.SecretService) {
	name := prompt("Name")
	description := prompt("Description")
	value := promptHidden("Value")
	if name == "" || value == "" {
		log.Fatal("secret name and value are required")
	}
	s, err := secretSvc.CreateSecret(ctx, name, description, value)
	if err != nil {
		log.Fatal(err)
	}
	fmt.Printf("created secret %s (id %d)\n", s.Name, s.SecretID)
}

func secretList(ctx context.Context, secretSvc *service.SecretService) {
	secrets, err := secretSvc.ListSecrets(ctx)
	if err != nil {
		log.Fatal(err)
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tDESCRIPTION")
	for _, s := range secrets {
		fmt.Fprintf(w, "%d\t%s\t%s\n", s.SecretID, s.Name, s.Description)
	}
	w.Flush()
}

func secretDelete(ctx context.Context, secretSvc *service.SecretService) {
	id := util.MustAtoi64(prompt("Secret ID"))
	if err := secretSvc.DeleteSecret(ctx, id); err != nil {
		log.Fatal(err)
	}
	fmt.Printf("deleted secret %d\n", id)
}

func agentAdd(ctx context.Context, agentSvc *service.AgentService) {
	name := prompt("Name")
	description := prompt("Description")
	osLabel := prompt("OS label (e.g. ubuntu-latest)")
	hostname := prompt("Hostname")
	username := prompt("Username")
	workspace := prompt("Workspace")
	privateKey := promptHidden("SSH private key (paste, single line base64 or PEM)")
	if name == "" || hostname == "" || username == "" {
		log.Fatal("agent name, hostname and username are required")
	}
	a, err := agentSvc.CreateAgent(
		ctx, name, description, osLabel, hostname, username, workspace, privateKey)
	if err != nil {
		log.Fatal(err)
	}
	fmt.Printf("created agent %s (id %d)\n", a.Name, a.AgentID)
}

func agentList(ctx context.Context, agentSvc *service.AgentService) {
	agents, err := agentSvc.ListAgents(ctx)
	if err != nil {
		log.Fatal(err)
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tOS\tHOSTNAME\tUSERNAME")
	for _, a := range agents {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n",
			a.AgentID, a.Name, a.OSLabel, a.Hostname, a.Username)
	}
	w.Flush()
}
