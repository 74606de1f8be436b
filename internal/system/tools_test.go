package system_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blackwell-systems/tweakguard/internal/system"
	"github.com/blackwell-systems/tweakguard/internal/system/systemtest"
)

func TestRegTool_ExportMissingKey(t *testing.T) {
	r := systemtest.NewRunner()
	r.On(`reg query HKCU\Software\Missing`, 1, "ERROR: The system was unable to find the specified registry key or value.")

	tool := system.NewQueryRegTool(r)
	err := tool.Export(context.Background(), system.Key{Hive: system.HKCU, Path: `Software\Missing`}, "out.reg")
	assert.ErrorIs(t, err, system.ErrKeyNotFound)
	assert.Equal(t, []string{`reg query HKCU\Software\Missing`}, r.Calls, "export must not run for a missing key")
}

func TestRegTool_QueryFailuresAreNotAbsence(t *testing.T) {
	tests := []struct {
		name   string
		output string
	}{
		{"access denied", "ERROR: Access is denied."},
		{"localized not found", "ERRO: O sistema não conseguiu localizar a chave ou o valor do Registro especificado."},
		{"no output", ""},
	}
	key := system.Key{Hive: system.HKLM, Path: `Software\Microsoft\Windows\CurrentVersion\Run`}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := systemtest.NewRunner()
			r.On(`reg query `+key.String(), 1, tt.output)
			tool := system.NewQueryRegTool(r)
			ctx := context.Background()

			exists, err := tool.KeyExists(ctx, key)
			require.Error(t, err)
			assert.False(t, exists)
			assert.NotErrorIs(t, err, system.ErrKeyNotFound)

			_, err = tool.Values(ctx, key)
			require.Error(t, err)
			assert.NotErrorIs(t, err, system.ErrKeyNotFound)

			err = tool.Export(ctx, key, "out.reg")
			require.Error(t, err)
			assert.NotErrorIs(t, err, system.ErrKeyNotFound)
		})
	}
}

func TestRegTool_ValuesMissingKey(t *testing.T) {
	r := systemtest.NewRunner()
	r.On(`reg query HKCU\Software\Missing`, 1, "ERROR: The system was unable to find the specified registry key or value.")

	_, err := system.NewQueryRegTool(r).Values(context.Background(), system.Key{Hive: system.HKCU, Path: `Software\Missing`})
	assert.ErrorIs(t, err, system.ErrKeyNotFound)
}

func TestRegTool_ExportAndImport(t *testing.T) {
	r := systemtest.NewRunner()
	r.On(`reg query HKCU\Software\Example`, 0, "")
	r.On(`reg export HKCU\Software\Example C:\b\x.reg /y`, 0, "The operation completed successfully.")
	r.On(`reg import C:\b\x.reg`, 1, "ERROR: Error accessing the registry.")

	tool := system.NewQueryRegTool(r)
	ctx := context.Background()
	key := system.Key{Hive: system.HKCU, Path: `Software\Example`}

	require.NoError(t, tool.Export(ctx, key, `C:\b\x.reg`))
	err := tool.Import(ctx, `C:\b\x.reg`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Error accessing the registry")
}

func TestRegTool_SetValue(t *testing.T) {
	r := systemtest.NewRunner()
	r.On(`reg add HKCU\Software\Example /v Flag /t REG_DWORD /d 1 /f`, 0, "")

	tool := system.NewQueryRegTool(r)
	err := tool.SetValue(context.Background(),
		system.Key{Hive: system.HKCU, Path: `Software\Example`},
		system.Value{Name: "Flag", Type: system.TypeDWord, Integer: 1})
	assert.NoError(t, err)
}

func TestServiceControl(t *testing.T) {
	r := systemtest.NewRunner()
	r.On("sc query svcA", 0, "        STATE              : 4  RUNNING\n")
	r.On("sc query svcB", 0, "        STATE              : 1  STOPPED\n")
	r.On("sc query ghost", 1060, "[SC] EnumQueryServicesStatus:OpenService FAILED 1060")
	r.On("net start svcB", 0, "The service was started successfully.")
	r.On("sc qc svcA", 0, "[SC] QueryServiceConfig SUCCESS\n\nSERVICE_NAME: svcA\n        START_TYPE         : 2   AUTO_START\n")

	sc := system.NewServiceControl(r)
	ctx := context.Background()

	state, err := sc.Status(ctx, "svcA")
	require.NoError(t, err)
	assert.Equal(t, system.StateRunning, state)

	_, err = sc.Status(ctx, "ghost")
	assert.True(t, errors.Is(err, system.ErrServiceNotFound))

	// Already running: no net.exe call.
	require.NoError(t, sc.Start(ctx, "svcA"))
	assert.NotContains(t, r.Calls, "net start svcA")

	require.NoError(t, sc.Start(ctx, "svcB"))
	assert.Contains(t, r.Calls, "net start svcB")

	cfg, err := sc.Config(ctx, "svcA")
	require.NoError(t, err)
	assert.Equal(t, "2   AUTO_START", cfg["START_TYPE"])
}

func TestPowerCfg(t *testing.T) {
	r := systemtest.NewRunner()
	r.On("powercfg /getactivescheme", 0,
		"Power Scheme GUID: 8C5E7FDA-E8BF-4A96-9A85-A6E23A8C635C  (High performance)\r\n")
	r.On("powercfg /setactive 00000000-0000-0000-0000-000000000000", 1,
		"The power scheme, subgroup or setting specified does not exist.")
	r.On("powercfg /list", 0, "Existing Power Schemes (* Active)\r\n"+
		"-----------------------------------\r\n"+
		"Power Scheme GUID: 381b4222-f694-41f0-9685-ff5bb260df2e  (Balanced)\r\n"+
		"Power Scheme GUID: 8c5e7fda-e8bf-4a96-9a85-a6e23a8c635c  (High performance) *\r\n")

	p := system.NewPowerCfg(r)
	ctx := context.Background()

	plan, err := p.Active(ctx)
	require.NoError(t, err)
	assert.Equal(t, system.PlanHighPerformance, plan.GUID)
	assert.Equal(t, "High performance", plan.Name)

	err = p.SetActive(ctx, "00000000-0000-0000-0000-000000000000")
	assert.ErrorIs(t, err, system.ErrPlanNotFound)
}

func TestPowerCfg_LocalizedOutput(t *testing.T) {
	const custom = "11111111-2222-3333-4444-555555555555"
	r := systemtest.NewRunner()
	r.On("powercfg /getactivescheme", 0,
		"GUID do Esquema de Energia: 381b4222-f694-41f0-9685-ff5bb260df2e  (Equilibrado)\r\n")
	r.On("powercfg /list", 0, "Esquemas de Energia Existentes (* Ativo)\r\n"+
		"-----------------------------------\r\n"+
		"GUID do Esquema de Energia: 381b4222-f694-41f0-9685-ff5bb260df2e  (Equilibrado) *\r\n"+
		"GUID do Esquema de Energia: "+custom+"  (Jogos)\r\n")
	r.On("powercfg /setactive 00000000-0000-0000-0000-000000000000", 1,
		"O esquema de energia, subgrupo ou configuração especificado não existe.")
	r.On("powercfg /setactive "+custom, 1, "Acesso negado.")

	p := system.NewPowerCfg(r)
	ctx := context.Background()

	plan, err := p.Active(ctx)
	require.NoError(t, err)
	assert.Equal(t, system.PlanBalanced, plan.GUID)
	assert.Equal(t, "Equilibrado", plan.Name)

	plans, err := p.List(ctx)
	require.NoError(t, err)
	require.Len(t, plans, 2)
	assert.Equal(t, "Jogos", plans[1].Name)

	err = p.SetActive(ctx, "00000000-0000-0000-0000-000000000000")
	assert.ErrorIs(t, err, system.ErrPlanNotFound)

	// The plan exists, so the failure is not a missing plan.
	err = p.SetActive(ctx, custom)
	require.Error(t, err)
	assert.NotErrorIs(t, err, system.ErrPlanNotFound)
	assert.Contains(t, err.Error(), "Acesso negado")
}
