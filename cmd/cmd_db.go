package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/eclipticdb/ecliptic/catalog"
)

var dbOrgID string

// dbCmd groups catalog administration commands
func dbCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "db",
		Short: "Catalog administration commands",
	}

	c.AddCommand(&cobra.Command{
		Use:   "init",
		Short: "Create the catalog file and seed the permission vocabulary",
		Run:   cmdDBInit,
	})

	orgCmd := &cobra.Command{
		Use:   "org",
		Short: "Manage organizations",
	}
	orgCmd.AddCommand(&cobra.Command{
		Use:   "add <name>",
		Short: "Create an organization",
		Args:  cobra.ExactArgs(1),
		Run:   cmdDBOrgAdd,
	})
	orgCmd.AddCommand(&cobra.Command{
		Use:   "get <name>",
		Short: "Look up an organization id by name",
		Args:  cobra.ExactArgs(1),
		Run:   cmdDBOrgGet,
	})
	c.AddCommand(orgCmd)

	keyCmd := &cobra.Command{
		Use:   "key",
		Short: "Manage MCP keys",
	}
	keyAdd := &cobra.Command{
		Use:   "add <name>",
		Short: "Mint an MCP key; the secret is printed once",
		Args:  cobra.ExactArgs(1),
		Run:   cmdDBKeyAdd,
	}
	keyAdd.Flags().StringVar(&dbOrgID, "org", "", "organization id")
	keyAdd.MarkFlagRequired("org") //nolint:errcheck
	keyCmd.AddCommand(keyAdd)

	keyList := &cobra.Command{
		Use:   "list",
		Short: "List an organization's MCP keys",
		Run:   cmdDBKeyList,
	}
	keyList.Flags().StringVar(&dbOrgID, "org", "", "organization id")
	keyList.MarkFlagRequired("org") //nolint:errcheck
	keyCmd.AddCommand(keyList)
	c.AddCommand(keyCmd)

	return c
}

// openCatalog opens the catalog at the configured path, creating and seeding
// it on first use.
func openCatalog() *catalog.Store {
	setup(cpath)
	cat, err := catalog.Open(conf.CatalogPath, log)
	if err != nil {
		log.Fatalf("failed to open catalog: %s", err)
	}
	return cat
}

func cmdDBInit(cmd *cobra.Command, args []string) {
	cat := openCatalog()
	defer cat.Close() //nolint:errcheck
	log.Infof("catalog ready at %s", conf.CatalogPath)
}

func cmdDBOrgAdd(cmd *cobra.Command, args []string) {
	cat := openCatalog()
	defer cat.Close() //nolint:errcheck

	org, err := cat.CreateOrganization(context.Background(), args[0])
	if err != nil {
		log.Fatalf("create organization: %s", err)
	}
	log.Infof("organization %s created with id %s", org.Name, org.ID)
}

func cmdDBOrgGet(cmd *cobra.Command, args []string) {
	cat := openCatalog()
	defer cat.Close() //nolint:errcheck

	org, err := cat.GetOrganizationByName(context.Background(), args[0])
	if err != nil {
		log.Fatalf("lookup organization: %s", err)
	}
	log.Infof("organization %s has id %s", org.Name, org.ID)
}

func cmdDBKeyAdd(cmd *cobra.Command, args []string) {
	cat := openCatalog()
	defer cat.Close() //nolint:errcheck

	key, err := cat.CreateMCPKey(context.Background(), dbOrgID, args[0])
	if err != nil {
		log.Fatalf("create key: %s", err)
	}
	log.Infof("key %s created with id %s", key.Name, key.ID)
	log.Infof("secret (shown once): %s", key.Secret)
}

func cmdDBKeyList(cmd *cobra.Command, args []string) {
	cat := openCatalog()
	defer cat.Close() //nolint:errcheck

	keys, err := cat.ListMCPKeys(context.Background(), dbOrgID)
	if err != nil {
		log.Fatalf("list keys: %s", err)
	}
	for _, k := range keys {
		log.Infof("%s  %s  %s", k.ID, k.Name, k.CreatedAt.Format("2006-01-02"))
	}
}
